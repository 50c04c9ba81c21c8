package productphoto

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/imaging"
	"server/internal/infra"
	"server/internal/productgen"
	"server/internal/storage"
)

// ErrTaskNotFound is returned when a task id has no state in memory or on disk.
var ErrTaskNotFound = errors.New("productphoto: task not found")

const defaultRetries = 3

// Options tunes the task service.
type Options struct {
	// Retries is the number of attempts per variation, defaulting to 3.
	// Attempts back off exponentially starting at one second.
	Retries int
	// ImageURLPrefix is prepended to task-relative image paths in events and
	// status reports.
	ImageURLPrefix string
	// Sleep is overridable for tests. The default honors context cancellation.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger infra.Logger
}

// Service runs product-photo generation tasks: one conditioning set in, up to
// four variations out, each persisted with a thumbnail. Task state is kept in
// memory for retries and recovered from disk after a restart.
type Service struct {
	generator productgen.Generator
	store     *storage.FileStore
	opts      Options

	mu    sync.Mutex
	tasks map[string]*Task

	subsMu sync.Mutex
	subs   map[string][]chan Event
}

// NewService wires the service over a generator and a blob store.
func NewService(generator productgen.Generator, store *storage.FileStore, opts Options) *Service {
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.ImageURLPrefix == "" {
		opts.ImageURLPrefix = "/v1/photos/images"
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Service{
		generator: generator,
		store:     store,
		opts:      opts,
		tasks:     map[string]*Task{},
		subs:      map[string][]chan Event{},
	}
}

// Subscribe attaches a listener to a task's progress events, for clients that
// reconnect to a stream after starting a task. The returned cancel must be
// called to detach. Slow listeners drop events rather than block the task.
func (s *Service) Subscribe(taskID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.subsMu.Lock()
	s.subs[taskID] = append(s.subs[taskID], ch)
	s.subsMu.Unlock()
	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		listeners := s.subs[taskID]
		for i, c := range listeners {
			if c == ch {
				s.subs[taskID] = append(listeners[:i:i], listeners[i+1:]...)
				break
			}
		}
		if len(s.subs[taskID]) == 0 {
			delete(s.subs, taskID)
		}
	}
	return ch, cancel
}

func (s *Service) publish(taskID string, event Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs[taskID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// fanout tees events to the caller's emit and to any subscribers.
func (s *Service) fanout(taskID string, emit func(Event)) func(Event) {
	return func(event Event) {
		emit(event)
		s.publish(taskID, event)
	}
}

// NewTaskID mints a fresh task identifier.
func NewTaskID() string {
	return "product_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Generate runs a full task: every variation is generated with retries,
// persisted alongside a thumbnail, and reported through emit. The returned
// error covers setup problems only; per-variation failures surface as events
// and in the final task status.
func (s *Service) Generate(ctx context.Context, taskID string, req productgen.Request, emit func(Event)) error {
	if taskID == "" {
		taskID = NewTaskID()
	}
	if err := req.Normalize(); err != nil {
		return err
	}
	emit = s.fanout(taskID, emit)

	task := &Task{
		ID:        taskID,
		Status:    StatusPending,
		Provider:  s.generator.Name(),
		Request:   req,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.tasks[taskID] = task
	s.mu.Unlock()

	total := req.Variations
	emit(Event{Type: EventStart, TaskID: taskID, Total: total,
		Message: fmt.Sprintf("generating %d product photos", total)})
	s.setStatus(task, StatusGenerating)

	var images []string
	failed := 0
	for i := 0; i < total; i++ {
		emit(Event{Type: EventProgress, TaskID: taskID, Index: i, Current: i + 1, Total: total,
			Message: fmt.Sprintf("generating image %d of %d", i+1, total)})

		filename, err := s.generateOne(ctx, taskID, req, i)
		if err != nil {
			failed++
			s.opts.Logger.Warn().Err(err).Str("task_id", taskID).Int("index", i).Msg("variation failed")
			emit(Event{Type: EventError, TaskID: taskID, Index: i, Current: i + 1, Total: total,
				Message: err.Error(), Retryable: true})
			continue
		}
		images = append(images, filename)
		s.mu.Lock()
		task.Results = append(task.Results, filename)
		s.mu.Unlock()
		emit(Event{Type: EventComplete, TaskID: taskID, Index: i, Current: i + 1, Total: total,
			ImageURL: s.imageURL(taskID, filename)})
	}

	switch {
	case failed == 0:
		s.setStatus(task, StatusCompleted)
	case failed == total:
		s.setStatus(task, StatusFailed)
	default:
		s.setStatus(task, StatusPartial)
	}

	urls := make([]string, 0, len(images))
	for _, filename := range images {
		urls = append(urls, s.imageURL(taskID, filename))
	}
	emit(Event{Type: EventFinish, TaskID: taskID, Success: failed == 0,
		Images: urls, Total: total, Completed: len(images), Failed: failed})
	return nil
}

// Retry regenerates a single variation of a known task, reusing the retained
// conditioning images and configuration.
func (s *Service) Retry(ctx context.Context, taskID string, index int, emit func(Event)) error {
	emit = s.fanout(taskID, emit)
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	var req productgen.Request
	if ok {
		req = task.Request
	}
	s.mu.Unlock()
	if !ok {
		emit(Event{Type: EventError, TaskID: taskID, Message: "unknown task " + taskID})
		return ErrTaskNotFound
	}
	if index < 0 || index >= req.Variations {
		return fmt.Errorf("productphoto: variation index %d out of range", index)
	}

	emit(Event{Type: EventRetryStart, TaskID: taskID, Index: index,
		Message: fmt.Sprintf("retrying image %d", index+1)})
	emit(Event{Type: EventProgress, TaskID: taskID, Index: index, Message: "regenerating"})

	filename, err := s.generateOne(ctx, taskID, req, index)
	if err != nil {
		s.mu.Lock()
		task.Error = err.Error()
		s.mu.Unlock()
		emit(Event{Type: EventError, TaskID: taskID, Index: index, Message: err.Error(), Retryable: true})
		emit(Event{Type: EventRetryFinish, TaskID: taskID, Index: index, Success: false, Message: err.Error()})
		return nil
	}

	s.mu.Lock()
	if !containsString(task.Results, filename) {
		task.Results = append(task.Results, filename)
	}
	if len(task.Results) >= task.Request.Variations {
		task.Status = StatusCompleted
	} else {
		task.Status = StatusPartial
	}
	s.mu.Unlock()
	emit(Event{Type: EventComplete, TaskID: taskID, Index: index, ImageURL: s.imageURL(taskID, filename)})
	emit(Event{Type: EventRetryFinish, TaskID: taskID, Index: index, Success: true})
	return nil
}

// setStatus updates a task's lifecycle state under the service lock.
func (s *Service) setStatus(task *Task, status TaskStatus) {
	s.mu.Lock()
	task.Status = status
	s.mu.Unlock()
}

// generateOne produces and persists a single variation with retries. It works
// on a copy of the request so concurrent status reads never see it mutate.
func (s *Service) generateOne(ctx context.Context, taskID string, req productgen.Request, index int) (string, error) {
	req.Variations = 1
	req.Prompt = strings.TrimSpace(req.Prompt)

	var lastErr error
	for attempt := 0; attempt < s.opts.Retries; attempt++ {
		if attempt > 0 {
			if err := s.opts.Sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				return "", err
			}
		}
		results, err := s.generator.Generate(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(results) == 0 || len(results[0].Image) == 0 {
			lastErr = errors.New("provider returned no image")
			continue
		}
		return s.persist(ctx, taskID, index, results[0].Image)
	}
	return "", fmt.Errorf("all %d attempts failed: %w", s.opts.Retries, lastErr)
}

// persist writes the image and its thumbnail under the task's directory.
func (s *Service) persist(ctx context.Context, taskID string, index int, data []byte) (string, error) {
	filename := fmt.Sprintf("%d.png", index)
	if _, err := s.store.Write(ctx, taskKey(taskID, filename), data); err != nil {
		return "", err
	}
	if thumb, err := imaging.Thumbnail(data); err == nil {
		if _, err := s.store.Write(ctx, taskKey(taskID, "thumb_"+filename), thumb); err != nil {
			s.opts.Logger.Warn().Err(err).Str("task_id", taskID).Msg("thumbnail write failed")
		}
	} else {
		s.opts.Logger.Warn().Err(err).Str("task_id", taskID).Msg("thumbnail generation failed")
	}
	return filename, nil
}

// Status reports a task's progress. Tasks absent from memory are recovered
// from disk so completed results survive a restart.
func (s *Service) Status(ctx context.Context, taskID string) (*StatusReport, error) {
	s.mu.Lock()
	if task, ok := s.tasks[taskID]; ok {
		urls := make([]string, 0, len(task.Results))
		for _, filename := range task.Results {
			urls = append(urls, s.imageURL(taskID, filename))
		}
		report := &StatusReport{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Provider:  task.Provider,
			Images:    urls,
			Completed: len(task.Results),
			Total:     task.Request.Variations,
			Error:     task.Error,
		}
		s.mu.Unlock()
		return report, nil
	}
	s.mu.Unlock()

	keys, err := s.store.List(ctx, "tasks/"+taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	var filenames []string
	for _, key := range keys {
		name := key[strings.LastIndex(key, "/")+1:]
		if strings.HasPrefix(name, "thumb_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		filenames = append(filenames, name)
	}
	sortNumeric(filenames)
	status := string(StatusCompleted)
	if len(filenames) == 0 {
		status = "unknown"
	}
	urls := make([]string, 0, len(filenames))
	for _, filename := range filenames {
		urls = append(urls, s.imageURL(taskID, filename))
	}
	return &StatusReport{TaskID: taskID, Status: status, Images: urls, Completed: len(filenames)}, nil
}

// Image returns a stored task image by filename.
func (s *Service) Image(ctx context.Context, taskID, filename string) ([]byte, error) {
	data, err := s.store.Read(ctx, taskKey(taskID, filename))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return data, nil
}

// ImageKeys lists a task's full-size image storage keys in variation order.
func (s *Service) ImageKeys(ctx context.Context, taskID string) ([]string, error) {
	keys, err := s.store.List(ctx, "tasks/"+taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	var out []string
	for _, key := range keys {
		name := key[strings.LastIndex(key, "/")+1:]
		if strings.HasPrefix(name, "thumb_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		out = append(out, key)
	}
	sortNumeric(out)
	return out, nil
}

// Store exposes the underlying blob store for archive downloads.
func (s *Service) Store() *storage.FileStore { return s.store }

// Cleanup drops a task's in-memory state. Persisted images stay on disk.
func (s *Service) Cleanup(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return false
	}
	delete(s.tasks, taskID)
	return true
}

func (s *Service) imageURL(taskID, filename string) string {
	return s.opts.ImageURLPrefix + "/" + taskID + "/" + filename
}

func taskKey(taskID, filename string) string {
	return "tasks/" + taskID + "/" + filename
}

func containsString(list []string, want string) bool {
	for _, got := range list {
		if got == want {
			return true
		}
	}
	return false
}

// sortNumeric orders filenames by their numeric stem so "10.png" follows
// "9.png". Non-numeric stems sort last.
func sortNumeric(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return numericStem(names[i]) < numericStem(names[j])
	})
}

func numericStem(name string) int {
	name = name[strings.LastIndex(name, "/")+1:]
	stem := strings.TrimSuffix(name, ".png")
	n, err := strconv.Atoi(stem)
	if err != nil {
		return 1 << 30
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
