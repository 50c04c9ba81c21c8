package editsession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Directory is the single source of truth for which edit sessions exist and
// are open. It hands out opaque ids, serializes disposal and distinguishes
// ids that were reaped by the TTL policy from ids that never existed.
type Directory struct {
	mu         sync.Mutex
	sessions   map[string]*directoryEntry
	tombstones map[string]tombstone
	limit      int
	ttl        time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

type directoryEntry struct {
	session    *Session
	lastActive time.Time
}

type tombstone struct {
	expired bool
	at      time.Time
}

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	// HistoryLimit bounds each session's history; zero means DefaultHistoryLimit.
	HistoryLimit int
	// TTL is the idle lifetime of a session before it is reaped. Zero
	// disables expiry.
	TTL time.Duration
	// Now is overridable for tests.
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewDirectory constructs an empty session directory.
func NewDirectory(opts DirectoryOptions) *Directory {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Directory{
		sessions:   make(map[string]*directoryEntry),
		tombstones: make(map[string]tombstone),
		limit:      limit,
		ttl:        opts.TTL,
		now:        now,
		logger:     opts.Logger,
	}
}

// Create opens a new session against the given source image and returns it.
// The correlation id ties the session back to whatever produced the source
// image (a generation task, a template) and is only used for logging.
func (d *Directory) Create(sourceImage []byte, correlationID string) (*Session, error) {
	if len(sourceImage) == 0 {
		return nil, ErrInvalidInput
	}
	session := newSession(uuid.NewString(), sourceImage, d.limit)

	d.mu.Lock()
	d.sessions[session.id] = &directoryEntry{session: session, lastActive: d.now()}
	d.mu.Unlock()

	d.logger.Info().
		Str("session_id", session.id).
		Str("correlation_id", correlationID).
		Int("source_bytes", len(sourceImage)).
		Msg("edit session created")
	return session, nil
}

// Get resolves a session id. Reaped ids report ErrSessionExpired, saved or
// cancelled ids ErrSessionClosed, unknown ids ErrSessionNotFound.
func (d *Directory) Get(id string) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.sessions[id]; ok {
		entry.lastActive = d.now()
		return entry.session, nil
	}
	if tomb, ok := d.tombstones[id]; ok {
		if tomb.expired {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionClosed
	}
	return nil, ErrSessionNotFound
}

// Close removes a session from the directory after a save or cancel. Closing
// an id a second time reports ErrSessionClosed; an unknown id reports
// ErrSessionNotFound.
func (d *Directory) Close(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.sessions[id]
	if !ok {
		if tomb, tombOK := d.tombstones[id]; tombOK {
			if tomb.expired {
				return ErrSessionExpired
			}
			return ErrSessionClosed
		}
		return ErrSessionNotFound
	}
	delete(d.sessions, id)
	d.tombstones[id] = tombstone{expired: false, at: d.now()}
	if !entry.session.Closed() {
		_ = entry.session.Cancel()
	}
	return nil
}

// Len returns the number of open sessions.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Sweep reaps sessions idle past the TTL and prunes stale tombstones. It is
// exported so the expiry policy is testable without a ticker.
func (d *Directory) Sweep() int {
	if d.ttl <= 0 {
		return 0
	}
	now := d.now()
	var reaped []*Session

	d.mu.Lock()
	for id, entry := range d.sessions {
		if now.Sub(entry.lastActive) >= d.ttl {
			delete(d.sessions, id)
			d.tombstones[id] = tombstone{expired: true, at: now}
			reaped = append(reaped, entry.session)
		}
	}
	// Tombstones older than one TTL window collapse into plain not-found.
	for id, tomb := range d.tombstones {
		if now.Sub(tomb.at) >= d.ttl {
			delete(d.tombstones, id)
		}
	}
	d.mu.Unlock()

	for _, session := range reaped {
		if !session.Closed() {
			_ = session.Cancel()
		}
		d.logger.Info().Str("session_id", session.ID()).Msg("edit session expired")
	}
	return len(reaped)
}

// Run sweeps expired sessions on the given interval until the context ends.
func (d *Directory) Run(ctx context.Context, interval time.Duration) {
	if d.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep()
		}
	}
}
