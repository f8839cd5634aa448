// Package store keeps the in-memory todo collection and reconciles every
// mutation against the remote backend: apply locally first, confirm
// remotely, roll the local change back if the confirmation fails.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ytomioka/kizuna-calendar/internal/dateutil"
	"github.com/ytomioka/kizuna-calendar/internal/models"
)

// RemoteGateway is the backend todo collection.
type RemoteGateway interface {
	FetchAll(ctx context.Context) ([]models.TodoItem, error)
	Insert(ctx context.Context, item models.TodoItem) error
	SetCompleted(ctx context.Context, id string, completed bool) error
	SetImages(ctx context.Context, id string, keys []string) error
	Delete(ctx context.Context, id string) error
	DeleteRange(ctx context.Context, startDateStr, endDateStr string) error
}

// ImageGateway deletes attachment objects during batch cleanup.
type ImageGateway interface {
	Delete(ctx context.Context, key string) error
}

var (
	ErrEmptyText = errors.New("todo text is empty")
	ErrNotFound  = errors.New("todo not found")
)

// Store owns the todo collection for one authenticated session. It is
// populated by Load after login and emptied by Clear at logout. Methods are
// safe for concurrent use; the remote confirmation happens outside the lock
// so a realtime Replace can land while a mutation is in flight.
type Store struct {
	remote RemoteGateway
	images ImageGateway

	mu    sync.Mutex
	todos []models.TodoItem
}

func New(remote RemoteGateway, images ImageGateway) *Store {
	return &Store{remote: remote, images: images}
}

// Load replaces the collection with the remote state.
func (s *Store) Load(ctx context.Context) error {
	todos, err := s.remote.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load todos: %v", err)
	}
	s.Replace(todos)
	return nil
}

// Sync re-fetches everything and replaces the collection. The realtime
// subscription calls this on every remote change; whichever sync finishes
// last wins.
func (s *Store) Sync(ctx context.Context) error {
	return s.Load(ctx)
}

// Replace swaps in a new collection wholesale.
func (s *Store) Replace(todos []models.TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = todos
}

// Clear empties the collection at logout.
func (s *Store) Clear() {
	s.Replace(nil)
}

// Snapshot returns a copy of the current collection.
func (s *Store) Snapshot() []models.TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TodoItem, len(s.todos))
	copy(out, s.todos)
	return out
}

// Get returns the todo with the given id.
func (s *Store) Get(id string) (models.TodoItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.todos[i], true
	}
	return models.TodoItem{}, false
}

// ForBucket returns the todos of one dateStr bucket, incomplete first.
func (s *Store) ForBucket(dateStr string) []models.TodoItem {
	s.mu.Lock()
	var matched []models.TodoItem
	for _, t := range s.todos {
		if t.DateStr == dateStr {
			matched = append(matched, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return !matched[i].Completed && matched[j].Completed
	})
	return matched
}

// CompletedInBucket counts completed todos in one bucket.
func (s *Store) CompletedInBucket(dateStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.todos {
		if t.DateStr == dateStr && t.Completed {
			n++
		}
	}
	return n
}

// Add appends the item immediately and confirms with a remote insert.
// On failure the item is removed again. The caller supplies DateStr; the
// store never infers the bucket from the content.
func (s *Store) Add(ctx context.Context, item models.TodoItem) error {
	if strings.TrimSpace(item.Text) == "" {
		return ErrEmptyText
	}
	if len(item.ImageURLs) == 0 {
		item.ImageURLs = nil
	}

	s.mu.Lock()
	s.todos = append(s.todos, item)
	s.mu.Unlock()

	if err := s.remote.Insert(ctx, item); err != nil {
		s.mu.Lock()
		if i := s.indexOf(item.ID); i >= 0 {
			s.todos = append(s.todos[:i], s.todos[i+1:]...)
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to add todo: %v", err)
	}
	return nil
}

// Toggle flips the completed flag and confirms remotely, restoring the
// previous value on failure. It returns the new completed state.
func (s *Store) Toggle(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	prev := s.todos[i].Completed
	s.todos[i].Completed = !prev
	s.mu.Unlock()

	if err := s.remote.SetCompleted(ctx, id, !prev); err != nil {
		s.mu.Lock()
		if i := s.indexOf(id); i >= 0 {
			s.todos[i].Completed = prev
		}
		s.mu.Unlock()
		return prev, fmt.Errorf("failed to update todo: %v", err)
	}
	return !prev, nil
}

// Delete removes the item and confirms remotely, re-inserting it on failure.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	removed := s.todos[i]
	s.todos = append(s.todos[:i], s.todos[i+1:]...)
	s.mu.Unlock()

	if err := s.remote.Delete(ctx, id); err != nil {
		s.mu.Lock()
		s.todos = append(s.todos, removed)
		s.mu.Unlock()
		return fmt.Errorf("failed to delete todo: %v", err)
	}
	return nil
}

// SetImages replaces the item's image key list (nil clears it) and confirms
// remotely, restoring the previous list on failure.
func (s *Store) SetImages(ctx context.Context, id string, keys []string) error {
	if len(keys) == 0 {
		keys = nil
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	prev := s.todos[i].ImageURLs
	s.todos[i].ImageURLs = keys
	s.mu.Unlock()

	if err := s.remote.SetImages(ctx, id, keys); err != nil {
		s.mu.Lock()
		if i := s.indexOf(id); i >= 0 {
			s.todos[i].ImageURLs = prev
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to update todo images: %v", err)
	}
	return nil
}

// DeleteMonth removes every day-bucket todo of the given month, deletes
// their attachment objects one by one (best effort, failures only log),
// then issues one remote range delete over the month's local date bounds.
// If the range delete fails the whole batch is re-inserted; already-deleted
// images are not restored. Returns the number of todos removed.
func (s *Store) DeleteMonth(ctx context.Context, year int, month time.Month) (int, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.Local)
	startStr := dateutil.FormatLocalDate(first)
	endStr := dateutil.FormatLocalDate(last)
	dayPrefix := dateutil.FormatMonthStr(first) + "-"

	s.mu.Lock()
	var removed, kept []models.TodoItem
	for _, t := range s.todos {
		if strings.HasPrefix(t.DateStr, dayPrefix) {
			removed = append(removed, t)
		} else {
			kept = append(kept, t)
		}
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.todos = kept
	s.mu.Unlock()

	// attachment cleanup first, sequential to bound object-store load
	for _, t := range removed {
		for _, key := range t.ImageURLs {
			if err := s.images.Delete(ctx, key); err != nil {
				log.Printf("Failed to delete image %s for todo %s: %v", key, t.ID, err)
			}
		}
	}

	if err := s.remote.DeleteRange(ctx, startStr, endStr); err != nil {
		s.mu.Lock()
		s.todos = append(s.todos, removed...)
		s.mu.Unlock()
		return 0, fmt.Errorf("failed to delete todos for %s: %v", dateutil.FormatMonthStr(first), err)
	}
	return len(removed), nil
}

// indexOf must be called with the lock held.
func (s *Store) indexOf(id string) int {
	for i, t := range s.todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}
