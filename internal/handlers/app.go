package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/ytomioka/kizuna-calendar/internal/calendar"
	"github.com/ytomioka/kizuna-calendar/internal/models"
	"github.com/ytomioka/kizuna-calendar/internal/services"
	"github.com/ytomioka/kizuna-calendar/internal/store"
)

// AppHandler wires the HTTP surface to the session store and the gateways.
type AppHandler struct {
	auth     *services.AuthService
	todos    *services.TodoService
	storage  *services.StorageService
	gemini   *services.GeminiService
	notifier *services.Notifier

	mu      sync.Mutex
	session *session
}

// session is the live state between login and logout: the todo store and
// the realtime subscription feeding it.
type session struct {
	user   models.User
	store  *store.Store
	cancel context.CancelFunc
}

func NewAppHandler(auth *services.AuthService, todos *services.TodoService, storage *services.StorageService, gemini *services.GeminiService, notifier *services.Notifier) *AppHandler {
	return &AppHandler{
		auth:     auth,
		todos:    todos,
		storage:  storage,
		gemini:   gemini,
		notifier: notifier,
	}
}

// Register mounts all API routes.
func (h *AppHandler) Register(e *echo.Echo) {
	e.POST("/api/login", h.Login)
	e.POST("/api/logout", h.Logout)
	e.GET("/api/me", h.Me)
	e.GET("/api/calendar", h.Calendar)
	e.GET("/api/todos", h.ListTodos)
	e.POST("/api/todos", h.AddTodo)
	e.POST("/api/todos/suggest", h.SuggestTodos)
	e.POST("/api/todos/:id/toggle", h.ToggleTodo)
	e.DELETE("/api/todos/:id", h.DeleteTodo)
	e.PUT("/api/todos/:id/images", h.SetTodoImages)
	e.POST("/api/todos/:id/images", h.UploadTodoImages)
	e.GET("/api/images/url", h.ImageURL)
	e.DELETE("/api/months/:month", h.DeleteMonth)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates, starts the session store and its realtime
// subscription, and sets the session cookie. A second login replaces the
// running session.
func (h *AppHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "リクエストが不正です"})
	}

	ctx := c.Request().Context()
	user, err := h.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		log.Printf("Sign-in error: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "ログインに失敗しました"})
	}

	st := store.New(h.todos, h.storage)
	if err := st.Load(ctx); err != nil {
		log.Printf("Initial todo load failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "Todoの読み込みに失敗しました"})
	}

	subCtx, cancel := context.WithCancel(context.Background())
	h.todos.Subscribe(subCtx, func() {
		if err := st.Sync(context.Background()); err != nil {
			log.Printf("Realtime refresh failed: %v", err)
		}
	})

	h.mu.Lock()
	if h.session != nil {
		h.session.cancel()
	}
	h.session = &session{user: *user, store: st, cancel: cancel}
	h.mu.Unlock()

	token, err := h.auth.IssueSession(user)
	if err != nil {
		log.Printf("Session issue error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "ログインに失敗しました"})
	}
	c.SetCookie(&http.Cookie{
		Name:     services.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, user)
}

// Logout tears the session down: subscription cancelled, store cleared,
// cookie expired.
func (h *AppHandler) Logout(c echo.Context) error {
	h.mu.Lock()
	if h.session != nil {
		h.session.cancel()
		h.session.store.Clear()
		h.session = nil
	}
	h.mu.Unlock()

	h.auth.SignOut()
	c.SetCookie(&http.Cookie{
		Name:     services.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *AppHandler) Me(c echo.Context) error {
	user, _, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, user)
}

// Calendar returns the 42-cell grid for the requested month (default: the
// current one).
func (h *AppHandler) Calendar(c echo.Context) error {
	_, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	now := time.Now()
	ref := now
	if m := c.QueryParam("month"); m != "" {
		ref, err = time.ParseInLocation("2006-01", m, time.Local)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "monthはYYYY-MM形式で指定してください"})
		}
	}

	days := calendar.MonthGrid(ref, now, st.Snapshot())
	return c.JSON(http.StatusOK, echo.Map{
		"year":     ref.Year(),
		"month":    int(ref.Month()),
		"weekdays": calendar.Weekdays,
		"days":     days,
	})
}

func (h *AppHandler) ListTodos(c echo.Context) error {
	_, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	bucket := c.QueryParam("bucket")
	if !validBucket(bucket) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bucketが不正です"})
	}
	return c.JSON(http.StatusOK, echo.Map{"todos": st.ForBucket(bucket)})
}

type addTodoRequest struct {
	DateStr string `json:"dateStr"`
	Text    string `json:"text"`
}

func (h *AppHandler) AddTodo(c echo.Context) error {
	user, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	var req addTodoRequest
	if err := c.Bind(&req); err != nil || !validBucket(req.DateStr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "リクエストが不正です"})
	}

	item := models.TodoItem{
		ID:        uuid.New().String(),
		DateStr:   req.DateStr,
		Text:      req.Text,
		CreatedBy: user.ID,
	}
	if err := st.Add(c.Request().Context(), item); err != nil {
		if errors.Is(err, store.ErrEmptyText) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "内容を入力してください"})
		}
		log.Printf("Add todo failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "Todoの追加に失敗しました"})
	}
	return c.JSON(http.StatusCreated, item)
}

// SuggestTodos adds the main task, then asks Gemini for sub-tasks and adds
// each as an indented todo. Suggestion failures only shrink the result.
func (h *AppHandler) SuggestTodos(c echo.Context) error {
	user, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	var req addTodoRequest
	if err := c.Bind(&req); err != nil || !validBucket(req.DateStr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "リクエストが不正です"})
	}

	ctx := c.Request().Context()
	main := models.TodoItem{
		ID:        uuid.New().String(),
		DateStr:   req.DateStr,
		Text:      req.Text,
		CreatedBy: user.ID,
	}
	if err := st.Add(ctx, main); err != nil {
		if errors.Is(err, store.ErrEmptyText) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "内容を入力してください"})
		}
		log.Printf("Add todo failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "Todoの追加に失敗しました"})
	}

	added := []models.TodoItem{main}
	for _, text := range h.gemini.SuggestSubtasks(ctx, req.Text) {
		sub := models.TodoItem{
			ID:        uuid.New().String(),
			DateStr:   req.DateStr,
			Text:      "  ↳ " + text,
			CreatedBy: user.ID,
		}
		if err := st.Add(ctx, sub); err != nil {
			log.Printf("Add suggested todo failed: %v", err)
			continue
		}
		added = append(added, sub)
	}
	return c.JSON(http.StatusCreated, echo.Map{"todos": added})
}

func (h *AppHandler) ToggleTodo(c echo.Context) error {
	user, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	id := c.Param("id")
	completed, err := st.Toggle(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Todoが見つかりません"})
		}
		log.Printf("Toggle todo failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "Todoの更新に失敗しました"})
	}

	if completed {
		h.maybeEncourage(st, id, user.Name)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "completed": completed})
}

// maybeEncourage fires a praise message on every third completed task in
// the item's bucket. Purely cosmetic and fully best-effort.
func (h *AppHandler) maybeEncourage(st *store.Store, id, partnerName string) {
	item, ok := st.Get(id)
	if !ok {
		return
	}
	count := st.CompletedInBucket(item.DateStr)
	if count == 0 || count%3 != 0 {
		return
	}
	go func() {
		msg := h.gemini.Encouragement(context.Background(), count, partnerName)
		h.notifier.PushEncouragement(msg)
	}()
}

func (h *AppHandler) DeleteTodo(c echo.Context) error {
	_, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := st.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Todoが見つかりません"})
		}
		log.Printf("Delete todo failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "Todoの削除に失敗しました"})
	}
	return c.NoContent(http.StatusNoContent)
}

type setImagesRequest struct {
	ImageURLs []string `json:"imageUrls"`
}

func (h *AppHandler) SetTodoImages(c echo.Context) error {
	_, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	var req setImagesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "リクエストが不正です"})
	}

	id := c.Param("id")
	if err := st.SetImages(c.Request().Context(), id, req.ImageURLs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Todoが見つかりません"})
		}
		log.Printf("Set todo images failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "画像の更新に失敗しました"})
	}

	item, _ := st.Get(id)
	return c.JSON(http.StatusOK, item)
}

// UploadTodoImages stores each uploaded file and appends its key to the
// todo. A rejected file (wrong type, too large) is skipped without
// aborting the rest of the batch.
func (h *AppHandler) UploadTodoImages(c echo.Context) error {
	_, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	id := c.Param("id")
	item, ok := st.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Todoが見つかりません"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "リクエストが不正です"})
	}

	ctx := c.Request().Context()
	var uploaded, rejected []string
	for _, fh := range form.File["images"] {
		f, err := fh.Open()
		if err != nil {
			log.Printf("Failed to open upload %s: %v", fh.Filename, err)
			rejected = append(rejected, fh.Filename)
			continue
		}
		key, err := h.storage.Upload(ctx, f, fh.Filename, fh.Header.Get("Content-Type"), fh.Size, id)
		f.Close()
		if err != nil {
			log.Printf("Rejected upload %s: %v", fh.Filename, err)
			rejected = append(rejected, fh.Filename)
			continue
		}
		uploaded = append(uploaded, key)
	}

	if len(uploaded) > 0 {
		keys := append(append([]string{}, item.ImageURLs...), uploaded...)
		if err := st.SetImages(ctx, id, keys); err != nil {
			log.Printf("Set todo images failed: %v", err)
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "画像の更新に失敗しました"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"uploaded": uploaded, "rejected": rejected})
}

func (h *AppHandler) ImageURL(c echo.Context) error {
	if _, _, err := h.currentSession(c); err != nil {
		return unauthorized(c)
	}

	key := c.QueryParam("key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "keyを指定してください"})
	}
	url, err := h.storage.DisplayURL(key)
	if err != nil {
		log.Printf("Display URL failed for %s: %v", key, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "画像URLの取得に失敗しました"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

func (h *AppHandler) DeleteMonth(c echo.Context) error {
	_, st, err := h.currentSession(c)
	if err != nil {
		return unauthorized(c)
	}

	ref, err := time.ParseInLocation("2006-01", c.Param("month"), time.Local)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "monthはYYYY-MM形式で指定してください"})
	}

	n, err := st.DeleteMonth(c.Request().Context(), ref.Year(), ref.Month())
	if err != nil {
		log.Printf("Delete month failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "月のTodo削除に失敗しました"})
	}
	if n == 0 {
		return c.JSON(http.StatusOK, echo.Map{"deleted": 0, "message": "対象月のTodoはありません"})
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}

// currentSession resolves the cookie identity and the active store. Any
// family member with a valid cookie shares the running session's store.
func (h *AppHandler) currentSession(c echo.Context) (*models.User, *store.Store, error) {
	cookie, err := c.Cookie(services.SessionCookieName)
	if err != nil {
		return nil, nil, err
	}
	user, err := h.auth.ParseSession(cookie.Value)
	if err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil, nil, errors.New("no active session")
	}
	return user, h.session.store, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "ログインしてください"})
}

// validBucket accepts a day ("2024-05-10"), a month ("2024-05"), or one of
// the reserved buckets.
func validBucket(s string) bool {
	switch s {
	case models.BucketImportant, models.BucketShopping:
		return true
	}
	if strings.TrimSpace(s) == "" {
		return false
	}
	if _, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil && len(s) == 10 {
		return true
	}
	if _, err := time.ParseInLocation("2006-01", s, time.Local); err == nil && len(s) == 7 {
		return true
	}
	return false
}
