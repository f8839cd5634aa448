package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ytomioka/kizuna-calendar/internal/models"
	"google.golang.org/api/iterator"
)

// todoDoc is the remote row shape of the todos collection. The image_url
// column is a single text field; legacy rows may hold a bare key, a
// JSON-encoded single key, or a JSON array. The ambiguity is normalized
// here and never reaches the rest of the app.
type todoDoc struct {
	ID        string    `firestore:"id"`
	DateStr   string    `firestore:"date_str"`
	Text      string    `firestore:"text"`
	Completed bool      `firestore:"completed"`
	CreatedBy string    `firestore:"created_by"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at,omitempty"`
	ImageURL  string    `firestore:"image_url,omitempty"`
}

// TodoService is the remote todo collection.
type TodoService struct {
	client *firestore.Client
}

func NewTodoService(client *firestore.Client) *TodoService {
	return &TodoService{client: client}
}

func (s *TodoService) todos() *firestore.CollectionRef {
	return s.client.Collection("todos")
}

// FetchAll returns every todo, oldest first.
func (s *TodoService) FetchAll(ctx context.Context) ([]models.TodoItem, error) {
	iter := s.todos().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var todos []models.TodoItem
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate todos: %v", err)
		}

		var row todoDoc
		if err := doc.DataTo(&row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal todo: %v", err)
		}

		todos = append(todos, models.TodoItem{
			ID:        row.ID,
			DateStr:   row.DateStr,
			Text:      row.Text,
			Completed: row.Completed,
			CreatedBy: row.CreatedBy,
			ImageURLs: normalizeImageField(row.ImageURL),
		})
	}

	return todos, nil
}

// Insert writes a new todo row.
func (s *TodoService) Insert(ctx context.Context, item models.TodoItem) error {
	row := todoDoc{
		ID:        item.ID,
		DateStr:   item.DateStr,
		Text:      item.Text,
		Completed: item.Completed,
		CreatedBy: item.CreatedBy,
		CreatedAt: time.Now(),
		ImageURL:  encodeImageField(item.ImageURLs),
	}
	if _, err := s.todos().Doc(item.ID).Set(ctx, row); err != nil {
		return fmt.Errorf("failed to insert todo: %v", err)
	}
	return nil
}

// SetCompleted updates the completed flag and the update timestamp.
func (s *TodoService) SetCompleted(ctx context.Context, id string, completed bool) error {
	_, err := s.todos().Doc(id).Update(ctx, []firestore.Update{
		{Path: "completed", Value: completed},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to update todo: %v", err)
	}
	return nil
}

// SetImages replaces the image key list. A nil list clears the field.
func (s *TodoService) SetImages(ctx context.Context, id string, keys []string) error {
	_, err := s.todos().Doc(id).Update(ctx, []firestore.Update{
		{Path: "image_url", Value: encodeImageField(keys)},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to update todo images: %v", err)
	}
	return nil
}

// Delete removes one todo row.
func (s *TodoService) Delete(ctx context.Context, id string) error {
	if _, err := s.todos().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete todo: %v", err)
	}
	return nil
}

// DeleteRange removes every todo whose date_str lies in [start, end].
func (s *TodoService) DeleteRange(ctx context.Context, startDateStr, endDateStr string) error {
	iter := s.todos().
		Where("date_str", ">=", startDateStr).
		Where("date_str", "<=", endDateStr).
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate todos for deletion: %v", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete todo: %v", err)
		}
	}

	return nil
}

// Subscribe watches the todos collection and invokes onChange on every
// remote change. The initial snapshot also fires onChange, which is
// harmless because a refresh is idempotent. The watch stops when ctx is
// cancelled.
func (s *TodoService) Subscribe(ctx context.Context, onChange func()) {
	go func() {
		snaps := s.todos().Snapshots(ctx)
		defer snaps.Stop()
		for {
			if _, err := snaps.Next(); err != nil {
				if ctx.Err() == nil {
					log.Printf("Todo subscription ended: %v", err)
				}
				return
			}
			onChange()
		}
	}()
}

// normalizeImageField decodes the legacy image_url text column into a key
// list. Empty input means no images.
func normalizeImageField(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err == nil {
		if len(keys) == 0 {
			return nil
		}
		return keys
	}

	var single string
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	// bare key from before the column held JSON
	return []string{raw}
}

// encodeImageField serializes a key list into the image_url text column.
func encodeImageField(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return ""
	}
	return string(b)
}
