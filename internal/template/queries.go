package template

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// Row is one model-template record. Image blobs live in the file store; the
// row carries their storage keys.
type Row struct {
	ID           uuid.UUID
	Name         string
	Metadata     []byte
	ImageKey     string
	ThumbnailKey string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateTemplateParams struct {
	ID           uuid.UUID
	Name         string
	Metadata     []byte
	ImageKey     string
	ThumbnailKey string
}

func (q *Queries) CreateTemplate(ctx context.Context, arg CreateTemplateParams) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO model_templates (id, name, metadata, image_key, thumbnail_key)
VALUES ($1, $2, $3, $4, $5)
`, arg.ID, arg.Name, arg.Metadata, arg.ImageKey, arg.ThumbnailKey)
	return err
}

func (q *Queries) GetTemplate(ctx context.Context, id uuid.UUID) (Row, error) {
	row := q.db.QueryRow(ctx, `
SELECT id, name, metadata, image_key, thumbnail_key, created_at, updated_at
FROM model_templates
WHERE id = $1
`, id)
	var tpl Row
	err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Metadata,
		&tpl.ImageKey,
		&tpl.ThumbnailKey,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	return tpl, err
}

func (q *Queries) ListTemplates(ctx context.Context) ([]Row, error) {
	rows, err := q.db.Query(ctx, `
SELECT id, name, metadata, image_key, thumbnail_key, created_at, updated_at
FROM model_templates
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []Row
	for rows.Next() {
		var tpl Row
		if err := rows.Scan(
			&tpl.ID,
			&tpl.Name,
			&tpl.Metadata,
			&tpl.ImageKey,
			&tpl.ThumbnailKey,
			&tpl.CreatedAt,
			&tpl.UpdatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

type UpdateTemplateParams struct {
	ID       uuid.UUID
	Name     *string
	Metadata []byte
}

// UpdateTemplate changes the name and/or metadata of a template. Nil fields
// keep their stored values.
func (q *Queries) UpdateTemplate(ctx context.Context, arg UpdateTemplateParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE model_templates
SET name = COALESCE($2, name),
    metadata = COALESCE($3, metadata),
    updated_at = now()
WHERE id = $1
`, arg.ID, arg.Name, arg.Metadata)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DeleteTemplate(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
DELETE FROM model_templates
WHERE id = $1
`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
