package editsession

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/mask"
)

// Editor is the external edit capability. Implementations receive the current
// image, a natural-language instruction and an optional region mask, and
// return the edited image. When a mask is supplied the contract is that every
// pixel outside the mask is bit-identical in the result.
type Editor interface {
	Edit(ctx context.Context, image []byte, instruction string, region *mask.Bitmap) ([]byte, error)
}

// EditorFunc adapts a function to the Editor interface.
type EditorFunc func(ctx context.Context, image []byte, instruction string, region *mask.Bitmap) ([]byte, error)

// Edit implements Editor.
func (f EditorFunc) Edit(ctx context.Context, image []byte, instruction string, region *mask.Bitmap) ([]byte, error) {
	return f(ctx, image, instruction, region)
}

// ServiceOptions configures the orchestration façade.
type ServiceOptions struct {
	// Timeout bounds each external edit call. Zero means no deadline beyond
	// the caller's context.
	Timeout time.Duration
	// VerifyMasks enables the unmasked-pixel preservation check on every
	// masked edit. Violations are treated as capability failures and the
	// session stays unchanged.
	VerifyMasks bool
	Logger      zerolog.Logger
}

// Service mediates between caller intent and the session state machine: it
// validates input, invokes the external edit capability and commits its
// result into history. At most one apply/undo/redo is in flight per session;
// concurrent calls are rejected, not queued.
type Service struct {
	directory *Directory
	editor    Editor
	opts      ServiceOptions

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService wires the façade over a directory and an edit capability.
func NewService(directory *Directory, editor Editor, opts ServiceOptions) *Service {
	return &Service{
		directory: directory,
		editor:    editor,
		opts:      opts,
		inflight:  make(map[string]struct{}),
	}
}

// Directory exposes the underlying session directory.
func (s *Service) Directory() *Directory { return s.directory }

// Create opens a session against the given source image.
func (s *Service) Create(sourceImage []byte, correlationID string) (Info, error) {
	session, err := s.directory.Create(sourceImage, correlationID)
	if err != nil {
		return Info{}, err
	}
	return session.Info()
}

// ApplyEdit runs one edit against the session's current image and commits the
// result. The session is left untouched on any failure.
func (s *Service) ApplyEdit(ctx context.Context, sessionID, instruction string, region *mask.Bitmap) (Info, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return Info{}, fmt.Errorf("%w: instruction must not be empty", ErrInvalidInput)
	}
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return Info{}, err
	}
	release, err := s.acquire(sessionID)
	if err != nil {
		return Info{}, err
	}
	defer release()

	current, err := session.Current()
	if err != nil {
		return Info{}, err
	}
	if region != nil {
		if err := checkMaskDimensions(current, region); err != nil {
			return Info{}, err
		}
	}

	editCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		editCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	edited, err := s.editor.Edit(editCtx, current, instruction, region)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("edit capability failed")
		return Info{}, fmt.Errorf("%w: %v", ErrEditFailed, err)
	}
	if len(edited) == 0 {
		return Info{}, fmt.Errorf("%w: capability returned empty image", ErrEditFailed)
	}
	if region != nil && s.opts.VerifyMasks {
		if err := VerifyMaskedEdit(current, edited, region); err != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrEditFailed, err)
		}
	}

	// The caller may have cancelled the session while the capability call was
	// pending; the late result is discarded rather than applied.
	if session.Closed() {
		s.opts.Logger.Info().Str("session_id", sessionID).Msg("discarding edit result for closed session")
		return Info{}, ErrSessionClosed
	}
	return session.Apply(edited)
}

// Undo steps the session one entry back.
func (s *Service) Undo(sessionID string) ([]byte, Info, error) {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return nil, Info{}, err
	}
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, Info{}, err
	}
	defer release()
	return session.Undo()
}

// Redo steps the session one entry forward, replaying stored history.
func (s *Service) Redo(sessionID string) ([]byte, Info, error) {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return nil, Info{}, err
	}
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, Info{}, err
	}
	defer release()
	return session.Redo()
}

// Current returns the session's current image.
func (s *Service) Current(sessionID string) ([]byte, error) {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Current()
}

// Original returns the immutable source image the session was opened against.
func (s *Service) Original(sessionID string) ([]byte, error) {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.SourceImage()
}

// Info returns the session's navigation snapshot.
func (s *Service) Info(sessionID string) (Info, error) {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return Info{}, err
	}
	return session.Info()
}

// Save closes the session and returns its current image as the durable result.
func (s *Service) Save(sessionID string) ([]byte, error) {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return nil, err
	}
	result, err := session.Save()
	if err != nil {
		return nil, err
	}
	_ = s.directory.Close(sessionID)
	return result, nil
}

// Cancel closes the session and discards all of its history.
func (s *Service) Cancel(sessionID string) error {
	session, err := s.directory.Get(sessionID)
	if err != nil {
		return err
	}
	if err := session.Cancel(); err != nil {
		return err
	}
	return s.directory.Close(sessionID)
}

func (s *Service) acquire(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sessionID]; busy {
		return nil, ErrOperationInFlight
	}
	s.inflight[sessionID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, sessionID)
		s.mu.Unlock()
	}, nil
}

// checkMaskDimensions rejects masks that do not match the current image
// size. Masks are never stretched to fit. Images the standard decoders do
// not recognize pass through; the capability is the authority on those.
func checkMaskDimensions(current []byte, region *mask.Bitmap) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(current))
	if err != nil {
		return nil
	}
	if !region.Matches(cfg.Width, cfg.Height) {
		return fmt.Errorf("%w: %w: mask is %dx%d but image is %dx%d",
			ErrInvalidInput, mask.ErrDimensionMismatch, region.Width(), region.Height(), cfg.Width, cfg.Height)
	}
	return nil
}
