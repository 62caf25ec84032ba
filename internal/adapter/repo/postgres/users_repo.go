package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// UserRepo persists and loads users using a minimal pgx pool.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

// Create inserts a new user and returns its id. Duplicate emails conflict.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) (string, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Create")
	defer span.End()
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO users (id, email, password_hash, created_at) VALUES ($1,$2,$3,$4)`
	_, err := r.Pool.Exec(ctx, q, id, u.Email, u.PasswordHash, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return "", fmt.Errorf("op=user.create: email taken: %w", domain.ErrConflict)
		}
		return "", fmt.Errorf("op=user.create: %w", err)
	}
	return id, nil
}

// GetByEmail loads a user by normalized email.
func (r *UserRepo) GetByEmail(ctx domain.Context, email string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.GetByEmail")
	defer span.End()
	q := `SELECT id, email, password_hash, created_at FROM users WHERE email=$1`
	var u domain.User
	if err := r.Pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, fmt.Errorf("op=user.get_by_email: %w", domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("op=user.get_by_email: %w", err)
	}
	return u, nil
}

// Get loads a user by id.
func (r *UserRepo) Get(ctx domain.Context, id string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Get")
	defer span.End()
	q := `SELECT id, email, password_hash, created_at FROM users WHERE id=$1`
	var u domain.User
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, fmt.Errorf("op=user.get: %w", domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("op=user.get: %w", err)
	}
	return u, nil
}
