package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ytomioka/kizuna-calendar/internal/models"
)

// fakeRemote records calls and lets individual operations be failed.
type fakeRemote struct {
	calls *[]string

	fetchAll     func() ([]models.TodoItem, error)
	insertErr    error
	completedErr error
	imagesErr    error
	deleteErr    error
	rangeErr     error
}

func (f *fakeRemote) record(call string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, call)
	}
}

func (f *fakeRemote) FetchAll(ctx context.Context) ([]models.TodoItem, error) {
	if f.fetchAll != nil {
		return f.fetchAll()
	}
	return nil, nil
}

func (f *fakeRemote) Insert(ctx context.Context, item models.TodoItem) error {
	f.record("insert:" + item.ID)
	return f.insertErr
}

func (f *fakeRemote) SetCompleted(ctx context.Context, id string, completed bool) error {
	f.record(fmt.Sprintf("completed:%s:%v", id, completed))
	return f.completedErr
}

func (f *fakeRemote) SetImages(ctx context.Context, id string, keys []string) error {
	f.record(fmt.Sprintf("images:%s:%d", id, len(keys)))
	return f.imagesErr
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.record("delete:" + id)
	return f.deleteErr
}

func (f *fakeRemote) DeleteRange(ctx context.Context, start, end string) error {
	f.record(fmt.Sprintf("deleteRange:%s:%s", start, end))
	return f.rangeErr
}

type fakeImages struct {
	calls     *[]string
	deleteErr error
}

func (f *fakeImages) Delete(ctx context.Context, key string) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, "image:"+key)
	}
	return f.deleteErr
}

func newTestStore(remote *fakeRemote, images *fakeImages, seed ...models.TodoItem) *Store {
	s := New(remote, images)
	s.Replace(seed)
	return s
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	item := models.TodoItem{ID: "a1", DateStr: "2024-05-10", Text: "buy milk", CreatedBy: "u1"}

	t.Run("success keeps the item", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{})
		if err := s.Add(ctx, item); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := s.ForBucket("2024-05-10"); len(got) != 1 || got[0].ID != "a1" {
			t.Errorf("bucket after add: got %v", got)
		}
	})

	t.Run("remote failure rolls the add back", func(t *testing.T) {
		s := newTestStore(&fakeRemote{insertErr: errors.New("insert refused")}, &fakeImages{})
		err := s.Add(ctx, item)
		if err == nil {
			t.Fatal("expected an error")
		}
		if got := s.ForBucket("2024-05-10"); len(got) != 0 {
			t.Errorf("store must return to 0 items for the date, got %d", len(got))
		}
		if got := s.Snapshot(); len(got) != 0 {
			t.Errorf("collection must equal pre-add state, got %d items", len(got))
		}
	})

	t.Run("empty text is rejected locally", func(t *testing.T) {
		remote := &fakeRemote{calls: &[]string{}}
		s := newTestStore(remote, &fakeImages{})
		if err := s.Add(ctx, models.TodoItem{ID: "x", DateStr: "2024-05-10", Text: "  "}); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("got %v, want ErrEmptyText", err)
		}
		if len(*remote.calls) != 0 {
			t.Errorf("no remote call expected, got %v", *remote.calls)
		}
	})

	t.Run("empty image list is normalized away", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{})
		withEmpty := item
		withEmpty.ImageURLs = []string{}
		if err := s.Add(ctx, withEmpty); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got, _ := s.Get("a1")
		if got.ImageURLs != nil {
			t.Errorf("ImageURLs: got %v, want nil", got.ImageURLs)
		}
	})
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	seed := models.TodoItem{ID: "t1", DateStr: "2024-05-10", Text: "laundry"}

	t.Run("success flips the flag", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{}, seed)
		now, err := s.Toggle(ctx, "t1")
		if err != nil || !now {
			t.Fatalf("got (%v, %v), want (true, nil)", now, err)
		}
		if got, _ := s.Get("t1"); !got.Completed {
			t.Error("item should be completed")
		}
	})

	t.Run("remote failure restores the previous value", func(t *testing.T) {
		s := newTestStore(&fakeRemote{completedErr: errors.New("update refused")}, &fakeImages{}, seed)
		if _, err := s.Toggle(ctx, "t1"); err == nil {
			t.Fatal("expected an error")
		}
		if got, _ := s.Get("t1"); got.Completed {
			t.Error("completed must revert to its pre-toggle value")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{})
		if _, err := s.Toggle(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	seed := models.TodoItem{ID: "d1", DateStr: "2024-05-10", Text: "trash day", ImageURLs: []string{"k1"}}

	t.Run("success removes the item", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{}, seed)
		if err := s.Delete(ctx, "d1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := s.Get("d1"); ok {
			t.Error("item should be gone")
		}
	})

	t.Run("remote failure re-inserts the item", func(t *testing.T) {
		s := newTestStore(&fakeRemote{deleteErr: errors.New("delete refused")}, &fakeImages{}, seed)
		if err := s.Delete(ctx, "d1"); err == nil {
			t.Fatal("expected an error")
		}
		got, ok := s.Get("d1")
		if !ok {
			t.Fatal("item must be restored")
		}
		if len(got.ImageURLs) != 1 || got.ImageURLs[0] != "k1" {
			t.Errorf("restored item lost its images: %v", got.ImageURLs)
		}
	})
}

func TestSetImages(t *testing.T) {
	ctx := context.Background()
	seed := models.TodoItem{ID: "i1", DateStr: "2024-05-10", Text: "photos", ImageURLs: []string{"old"}}

	t.Run("success replaces the list", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{}, seed)
		if err := s.SetImages(ctx, "i1", []string{"new1", "new2"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got, _ := s.Get("i1")
		if len(got.ImageURLs) != 2 || got.ImageURLs[0] != "new1" {
			t.Errorf("ImageURLs: got %v", got.ImageURLs)
		}
	})

	t.Run("empty list clears to nil", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{}, seed)
		if err := s.SetImages(ctx, "i1", []string{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got, _ := s.Get("i1"); got.ImageURLs != nil {
			t.Errorf("ImageURLs: got %v, want nil", got.ImageURLs)
		}
	})

	t.Run("remote failure restores the previous list", func(t *testing.T) {
		s := newTestStore(&fakeRemote{imagesErr: errors.New("update refused")}, &fakeImages{}, seed)
		if err := s.SetImages(ctx, "i1", []string{"new1"}); err == nil {
			t.Fatal("expected an error")
		}
		got, _ := s.Get("i1")
		if len(got.ImageURLs) != 1 || got.ImageURLs[0] != "old" {
			t.Errorf("ImageURLs must revert: got %v", got.ImageURLs)
		}
	})
}

func TestDeleteMonth(t *testing.T) {
	ctx := context.Background()
	seed := []models.TodoItem{
		{ID: "m1", DateStr: "2024-05-10", Text: "with images", ImageURLs: []string{"k1", "k2", "k3"}},
		{ID: "m2", DateStr: "2024-05-20", Text: "plain"},
		{ID: "other", DateStr: "2024-06-01", Text: "next month"},
		{ID: "bucket", DateStr: models.BucketShopping, Text: "eggs"},
	}

	t.Run("images deleted before the range delete with local month bounds", func(t *testing.T) {
		calls := []string{}
		remote := &fakeRemote{calls: &calls}
		images := &fakeImages{calls: &calls}
		s := newTestStore(remote, images, seed...)

		n, err := s.DeleteMonth(ctx, 2024, time.May)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != 2 {
			t.Errorf("removed count: got %d, want 2", n)
		}

		want := []string{"image:k1", "image:k2", "image:k3", "deleteRange:2024-05-01:2024-05-31"}
		if len(calls) != len(want) {
			t.Fatalf("calls: got %v, want %v", calls, want)
		}
		for i := range want {
			if calls[i] != want[i] {
				t.Errorf("call %d: got %q, want %q", i, calls[i], want[i])
			}
		}

		if _, ok := s.Get("other"); !ok {
			t.Error("todos outside the month must survive")
		}
		if _, ok := s.Get("bucket"); !ok {
			t.Error("sentinel-bucket todos must survive")
		}
		if _, ok := s.Get("m1"); ok {
			t.Error("month todos must be gone")
		}
	})

	t.Run("image failures never block the range delete", func(t *testing.T) {
		calls := []string{}
		remote := &fakeRemote{calls: &calls}
		images := &fakeImages{calls: &calls, deleteErr: errors.New("object gone")}
		s := newTestStore(remote, images, seed...)

		if _, err := s.DeleteMonth(ctx, 2024, time.May); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls[len(calls)-1] != "deleteRange:2024-05-01:2024-05-31" {
			t.Errorf("range delete must still run, calls: %v", calls)
		}
	})

	t.Run("range failure restores the whole batch", func(t *testing.T) {
		s := newTestStore(&fakeRemote{rangeErr: errors.New("range refused")}, &fakeImages{}, seed...)
		if _, err := s.DeleteMonth(ctx, 2024, time.May); err == nil {
			t.Fatal("expected an error")
		}
		if got := s.Snapshot(); len(got) != len(seed) {
			t.Errorf("collection: got %d items, want %d", len(got), len(seed))
		}
		if _, ok := s.Get("m1"); !ok {
			t.Error("batch must be re-inserted")
		}
	})

	t.Run("empty month is a no-op", func(t *testing.T) {
		calls := []string{}
		remote := &fakeRemote{calls: &calls}
		s := newTestStore(remote, &fakeImages{calls: &calls}, seed...)
		n, err := s.DeleteMonth(ctx, 2030, time.January)
		if err != nil || n != 0 {
			t.Fatalf("got (%d, %v), want (0, nil)", n, err)
		}
		if len(calls) != 0 {
			t.Errorf("no remote calls expected, got %v", calls)
		}
	})

	t.Run("february bounds use the real month end", func(t *testing.T) {
		calls := []string{}
		remote := &fakeRemote{calls: &calls}
		s := newTestStore(remote, &fakeImages{},
			models.TodoItem{ID: "f1", DateStr: "2024-02-29", Text: "leap day"})
		if _, err := s.DeleteMonth(ctx, 2024, time.February); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls[len(calls)-1] != "deleteRange:2024-02-01:2024-02-29" {
			t.Errorf("calls: got %v", calls)
		}
	})
}

func TestReplaceAndSync(t *testing.T) {
	ctx := context.Background()

	t.Run("sync replaces everything", func(t *testing.T) {
		remote := &fakeRemote{fetchAll: func() ([]models.TodoItem, error) {
			return []models.TodoItem{{ID: "fresh", DateStr: "2024-05-10", Text: "from server"}}, nil
		}}
		s := newTestStore(remote, &fakeImages{},
			models.TodoItem{ID: "stale", DateStr: "2024-05-10", Text: "local"})
		if err := s.Sync(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := s.Snapshot()
		if len(got) != 1 || got[0].ID != "fresh" {
			t.Errorf("snapshot after sync: got %v", got)
		}
	})

	t.Run("fetch failure keeps current state", func(t *testing.T) {
		remote := &fakeRemote{fetchAll: func() ([]models.TodoItem, error) {
			return nil, errors.New("unavailable")
		}}
		s := newTestStore(remote, &fakeImages{},
			models.TodoItem{ID: "keep", DateStr: "2024-05-10", Text: "local"})
		if err := s.Sync(ctx); err == nil {
			t.Fatal("expected an error")
		}
		if got := s.Snapshot(); len(got) != 1 || got[0].ID != "keep" {
			t.Errorf("snapshot: got %v", got)
		}
	})

	t.Run("clear empties the collection", func(t *testing.T) {
		s := newTestStore(&fakeRemote{}, &fakeImages{},
			models.TodoItem{ID: "x", DateStr: "2024-05-10", Text: "y"})
		s.Clear()
		if got := s.Snapshot(); len(got) != 0 {
			t.Errorf("snapshot: got %v, want empty", got)
		}
	})
}

func TestForBucketSorting(t *testing.T) {
	s := newTestStore(&fakeRemote{}, &fakeImages{},
		models.TodoItem{ID: "1", DateStr: models.BucketImportant, Text: "done", Completed: true},
		models.TodoItem{ID: "2", DateStr: models.BucketImportant, Text: "open a"},
		models.TodoItem{ID: "3", DateStr: models.BucketImportant, Text: "open b"},
		models.TodoItem{ID: "4", DateStr: "2024-05-10", Text: "elsewhere"},
	)
	got := s.ForBucket(models.BucketImportant)
	wantIDs := []string{"2", "3", "1"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d todos, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("todo %d: got id %s, want %s", i, got[i].ID, want)
		}
	}
}
