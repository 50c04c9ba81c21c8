package editsession

import (
	"sync"
	"time"
)

// DefaultHistoryLimit bounds the total number of image versions a session
// keeps, the source image included.
const DefaultHistoryLimit = 10

// Info is a read-only snapshot of a session's navigation state.
type Info struct {
	ID           string    `json:"id"`
	CanUndo      bool      `json:"can_undo"`
	CanRedo      bool      `json:"can_redo"`
	HistoryCount int       `json:"history_count"`
	HistoryIndex int       `json:"history_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a bounded linear undo/redo history over image versions.
//
// history[0] starts as the source image and the cursor always addresses a
// valid entry. Applying an edit from a non-head cursor discards the redo
// branch; exceeding the capacity evicts the oldest entry and rebases the
// cursor. After Save or Cancel the session is closed and every transition
// reports ErrSessionClosed.
//
// All methods are safe for concurrent use; transitions on one session are
// strictly serialized by its own mutex.
type Session struct {
	mu        sync.Mutex
	id        string
	source    []byte
	history   [][]byte
	cursor    int
	limit     int
	createdAt time.Time
	closed    bool
}

func newSession(id string, source []byte, limit int) *Session {
	if limit < 2 {
		limit = DefaultHistoryLimit
	}
	owned := append([]byte(nil), source...)
	return &Session{
		id:        id,
		source:    owned,
		history:   [][]byte{owned},
		cursor:    0,
		limit:     limit,
		createdAt: time.Now(),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// SourceImage returns the immutable original the session was opened against.
// It is retrievable for the whole session lifetime, even after the entry has
// been evicted from the undo window.
func (s *Session) SourceImage() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return append([]byte(nil), s.source...), nil
}

// Current returns the image version at the cursor.
func (s *Session) Current() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return append([]byte(nil), s.history[s.cursor]...), nil
}

// Apply truncates any redo branch, appends the edited image and moves the
// cursor to it. When the capacity bound is exceeded the oldest entry is
// evicted and the cursor shifts down by one, so relative position is kept.
func (s *Session) Apply(edited []byte) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Info{}, ErrSessionClosed
	}
	if len(edited) == 0 {
		return Info{}, ErrInvalidInput
	}
	if s.cursor < len(s.history)-1 {
		// Branch discard: everything after the cursor becomes unreachable.
		for i := s.cursor + 1; i < len(s.history); i++ {
			s.history[i] = nil
		}
		s.history = s.history[:s.cursor+1]
	}
	s.history = append(s.history, append([]byte(nil), edited...))
	s.cursor = len(s.history) - 1
	if len(s.history) > s.limit {
		s.history[0] = nil
		s.history = s.history[1:]
		s.cursor--
	}
	return s.infoLocked(), nil
}

// Undo moves the cursor one step back and returns the now-current image.
func (s *Session) Undo() ([]byte, Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, Info{}, ErrSessionClosed
	}
	if s.cursor <= 0 {
		return nil, Info{}, ErrIllegalTransition
	}
	s.cursor--
	return append([]byte(nil), s.history[s.cursor]...), s.infoLocked(), nil
}

// Redo moves the cursor one step forward and returns the now-current image.
// The image is replayed from history, never recomputed.
func (s *Session) Redo() ([]byte, Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, Info{}, ErrSessionClosed
	}
	if s.cursor >= len(s.history)-1 {
		return nil, Info{}, ErrIllegalTransition
	}
	s.cursor++
	return append([]byte(nil), s.history[s.cursor]...), s.infoLocked(), nil
}

// Save closes the session and returns the current image as the durable
// result. Saving from a non-head cursor is legal; the redo branch is lost.
func (s *Session) Save() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	result := append([]byte(nil), s.history[s.cursor]...)
	s.closeLocked()
	return result, nil
}

// Cancel closes the session and discards all history. The source image held
// by callers is untouched; the session never mutates anything outside its
// own history.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closeLocked()
	return nil
}

// Closed reports whether the session has been saved or cancelled.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Info returns a snapshot of the navigation state.
func (s *Session) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Info{}, ErrSessionClosed
	}
	return s.infoLocked(), nil
}

func (s *Session) infoLocked() Info {
	return Info{
		ID:           s.id,
		CanUndo:      s.cursor > 0,
		CanRedo:      s.cursor < len(s.history)-1,
		HistoryCount: len(s.history),
		HistoryIndex: s.cursor,
		CreatedAt:    s.createdAt,
	}
}

func (s *Session) closeLocked() {
	s.closed = true
	for i := range s.history {
		s.history[i] = nil
	}
	s.history = nil
	s.source = nil
	s.cursor = 0
}
