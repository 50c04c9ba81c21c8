package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"server/internal/imaging"
	"server/internal/infra"
	"server/internal/storage"
)

// ErrTemplateNotFound is returned when a template id has no record.
var ErrTemplateNotFound = errors.New("template: not found")

// Info is the externally visible template summary.
type Info struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ThumbnailURL string          `json:"thumbnail_url"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Service manages reusable model templates: the rows live in Postgres, the
// image and its thumbnail in the blob store.
type Service struct {
	queries *Queries
	store   *storage.FileStore
	logger  infra.Logger
}

// NewService wires the template service.
func NewService(queries *Queries, store *storage.FileStore, logger infra.Logger) *Service {
	return &Service{queries: queries, store: store, logger: logger}
}

// Save stores a new template and returns its id.
func (s *Service) Save(ctx context.Context, name string, image []byte, metadata json.RawMessage) (string, error) {
	if name == "" {
		return "", fmt.Errorf("template: name is required")
	}
	if len(image) == 0 {
		return "", fmt.Errorf("template: image is required")
	}
	id := uuid.New()

	imageKey, err := s.store.Write(ctx, blobKey(id, "image.png"), image)
	if err != nil {
		return "", err
	}
	thumbnailKey := ""
	if thumb, err := imaging.Thumbnail(image); err == nil {
		thumbnailKey, err = s.store.Write(ctx, blobKey(id, "thumbnail.jpg"), thumb)
		if err != nil {
			s.logger.Warn().Err(err).Str("template_id", id.String()).Msg("thumbnail write failed")
			thumbnailKey = ""
		}
	} else {
		s.logger.Warn().Err(err).Str("template_id", id.String()).Msg("thumbnail generation failed")
	}

	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	err = s.queries.CreateTemplate(ctx, CreateTemplateParams{
		ID:           id,
		Name:         name,
		Metadata:     metadata,
		ImageKey:     imageKey,
		ThumbnailKey: thumbnailKey,
	})
	if err != nil {
		_ = s.store.RemoveAll(ctx, "templates/"+id.String())
		return "", fmt.Errorf("template: insert: %w", err)
	}
	s.logger.Info().Str("template_id", id.String()).Str("name", name).Msg("template saved")
	return id.String(), nil
}

// List returns all templates, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	rows, err := s.queries.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("template: list: %w", err)
	}
	infos := make([]Info, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, rowInfo(row))
	}
	return infos, nil
}

// Image returns the template's full-size image bytes.
func (s *Service) Image(ctx context.Context, id string) ([]byte, error) {
	row, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(ctx, row.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return data, nil
}

// Thumbnail returns the template's thumbnail, falling back to the full image
// when no thumbnail was stored.
func (s *Service) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	row, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.ThumbnailKey != "" {
		data, err := s.store.Read(ctx, row.ThumbnailKey)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	data, err := s.store.Read(ctx, row.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return data, nil
}

// GetInfo returns the template's summary record.
func (s *Service) GetInfo(ctx context.Context, id string) (Info, error) {
	row, err := s.get(ctx, id)
	if err != nil {
		return Info{}, err
	}
	return rowInfo(row), nil
}

// Update changes the template's name and/or metadata. Nil fields keep their
// stored values.
func (s *Service) Update(ctx context.Context, id string, name *string, metadata json.RawMessage) error {
	templateID, err := parseID(id)
	if err != nil {
		return err
	}
	affected, err := s.queries.UpdateTemplate(ctx, UpdateTemplateParams{
		ID:       templateID,
		Name:     name,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("template: update: %w", err)
	}
	if affected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Delete removes the template record and its blobs.
func (s *Service) Delete(ctx context.Context, id string) error {
	templateID, err := parseID(id)
	if err != nil {
		return err
	}
	affected, err := s.queries.DeleteTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("template: delete: %w", err)
	}
	if affected == 0 {
		return ErrTemplateNotFound
	}
	if err := s.store.RemoveAll(ctx, "templates/"+templateID.String()); err != nil {
		s.logger.Warn().Err(err).Str("template_id", id).Msg("blob cleanup failed")
	}
	return nil
}

func (s *Service) get(ctx context.Context, id string) (Row, error) {
	templateID, err := parseID(id)
	if err != nil {
		return Row{}, err
	}
	row, err := s.queries.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrTemplateNotFound
		}
		return Row{}, fmt.Errorf("template: get: %w", err)
	}
	return row, nil
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.UUID{}, ErrTemplateNotFound
	}
	return parsed, nil
}

func rowInfo(row Row) Info {
	return Info{
		ID:           row.ID.String(),
		Name:         row.Name,
		ThumbnailURL: "/v1/templates/" + row.ID.String() + "/thumbnail",
		Metadata:     row.Metadata,
		CreatedAt:    row.CreatedAt,
	}
}

func blobKey(id uuid.UUID, filename string) string {
	return "templates/" + id.String() + "/" + filename
}
