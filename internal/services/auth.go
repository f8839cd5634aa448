package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/ytomioka/kizuna-calendar/internal/models"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/iterator"
)

// SessionCookieName is the fixed cookie key the session identity lives
// under; clearing it is the whole of logout persistence.
const SessionCookieName = "kizuna_session"

const sessionTTL = 30 * 24 * time.Hour

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("メールアドレスまたはパスワードが正しくありません")

type userDoc struct {
	ID           string `firestore:"id"`
	Email        string `firestore:"email"`
	Name         string `firestore:"name"`
	Role         string `firestore:"role"`
	AvatarColor  string `firestore:"avatar_color"`
	PasswordHash string `firestore:"password_hash"`
}

type sessionClaims struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	AvatarColor string `json:"avatarColor"`
	jwt.RegisteredClaims
}

// AuthService authenticates against the users collection and issues the
// session tokens carried in SessionCookieName.
type AuthService struct {
	client *firestore.Client
	secret []byte

	mu        sync.Mutex
	listeners []func(*models.User)
}

func NewAuthService(client *firestore.Client, secret []byte) *AuthService {
	return &AuthService{client: client, secret: secret}
}

func (s *AuthService) users() *firestore.CollectionRef {
	return s.client.Collection("users")
}

// SignIn checks the credentials and returns the user on success. Listeners
// registered with OnChange are notified.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	iter := s.users().Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %v", err)
	}

	var row userDoc
	if err := doc.DataTo(&row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %v", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user := &models.User{
		ID:          row.ID,
		Name:        row.Name,
		Role:        row.Role,
		AvatarColor: row.AvatarColor,
	}
	s.notify(user)
	return user, nil
}

// SignOut notifies listeners that the session ended. Cookie removal is the
// caller's job.
func (s *AuthService) SignOut() {
	s.notify(nil)
}

// OnChange registers a listener called with the user on sign-in and nil on
// sign-out.
func (s *AuthService) OnChange(fn func(*models.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *AuthService) notify(user *models.User) {
	s.mu.Lock()
	listeners := make([]func(*models.User), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(user)
	}
}

// IssueSession signs a session token for the user.
func (s *AuthService) IssueSession(user *models.User) (string, error) {
	claims := sessionClaims{
		Name:        user.Name,
		Role:        user.Role,
		AvatarColor: user.AvatarColor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %v", err)
	}
	return token, nil
}

// ParseSession validates a session token and returns its user.
func (s *AuthService) ParseSession(token string) (*models.User, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	return &models.User{
		ID:          claims.Subject,
		Name:        claims.Name,
		Role:        claims.Role,
		AvatarColor: claims.AvatarColor,
	}, nil
}

// CreateUser seeds a user account. An existing email is left untouched so
// the seed can run on every startup.
func (s *AuthService) CreateUser(ctx context.Context, email, password, name string) error {
	iter := s.users().Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err == nil {
		return nil
	} else if err != iterator.Done {
		return fmt.Errorf("failed to look up user: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}

	row := userDoc{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Role:         "partner",
		AvatarColor:  "bg-purple-500",
		PasswordHash: string(hash),
	}
	if _, err := s.users().Doc(row.ID).Set(ctx, row); err != nil {
		return fmt.Errorf("failed to create user: %v", err)
	}
	return nil
}
