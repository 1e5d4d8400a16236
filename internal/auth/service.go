package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/solverhub/backend/internal/apperror"
	"github.com/solverhub/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = apperror.Conflict("email already registered")

var errInvalidCredentials = apperror.Unauthorized("invalid credentials")

// UserStore persists marketplace users.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

type Service interface {
	Register(ctx context.Context, email, password, fullName, role string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	// ValidateToken resolves a bearer token to the caller's actor. Deactivated
	// users are refused and role changes apply to tokens already issued.
	ValidateToken(ctx context.Context, token string) (models.Actor, error)
	Me(ctx context.Context, actor models.Actor) (*models.User, error)

	ListUsers(ctx context.Context, actor models.Actor) ([]*models.User, error)
	GetUser(ctx context.Context, actor models.Actor, userID uuid.UUID) (*models.User, error)
	AssignRole(ctx context.Context, actor models.Actor, userID uuid.UUID, role string) (*models.User, error)
	SetActive(ctx context.Context, actor models.Actor, userID uuid.UUID, active bool) (*models.User, error)
	CreateAdmin(ctx context.Context, email, password, fullName string) (*models.User, error)
}

type service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(store UserStore, secret string, ttl time.Duration) *service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) Register(ctx context.Context, email, password, fullName, role string) (*models.User, error) {
	if role != models.RoleBuyer && role != models.RoleSolver {
		return nil, apperror.Validation("invalid role")
	}
	return s.create(ctx, email, password, fullName, role)
}

// CreateAdmin provisions an administrator. It is reachable only from the CLI.
func (s *service) CreateAdmin(ctx context.Context, email, password, fullName string) (*models.User, error) {
	return s.create(ctx, email, password, fullName, models.RoleAdmin)
}

func (s *service) create(ctx context.Context, email, password, fullName, role string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.Validation("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", errInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", errInvalidCredentials
	}
	if !u.IsActive {
		return "", apperror.Forbidden("account is deactivated")
	}
	return s.issueToken(u.ID, u.Role)
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (models.Actor, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeUnauthorized, "invalid token", err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, apperror.Unauthorized("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, apperror.Unauthorized("invalid token subject")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("unknown user")
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, apperror.Forbidden("account is deactivated")
	}
	return models.NewActor(u.ID, u.Role)
}

func (s *service) Me(ctx context.Context, actor models.Actor) (*models.User, error) {
	return s.store.GetByID(ctx, actor.ActorID())
}

func requireAdmin(actor models.Actor) error {
	if _, ok := actor.(models.Admin); !ok {
		return apperror.Forbidden("admin access required")
	}
	return nil
}

func (s *service) ListUsers(ctx context.Context, actor models.Actor) ([]*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *service) GetUser(ctx context.Context, actor models.Actor, userID uuid.UUID) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, userID)
}

func (s *service) AssignRole(ctx context.Context, actor models.Actor, userID uuid.UUID, role string) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, apperror.Validation("invalid role")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Role = role
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) SetActive(ctx context.Context, actor models.Actor, userID uuid.UUID, active bool) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if userID == actor.ActorID() && !active {
		return nil, apperror.Validation("admins cannot deactivate themselves")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.IsActive = active
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
