package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidArgument    = errors.New("invalid registration request")
)

// UserStore persists accounts keyed by email.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) error
	PasswordHash(ctx context.Context, email string) (string, error)
	Mode() string
	Close() error
}

// Users registers and authenticates accounts.
type Users struct {
	store UserStore
	cost  int
}

func NewUsers(store UserStore) *Users {
	return &Users{store: store, cost: bcrypt.DefaultCost}
}

func (u *Users) Register(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidArgument)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return fmt.Errorf("%w: password is too long", ErrInvalidArgument)
		}
		return fmt.Errorf("hash password: %w", err)
	}
	return u.store.Create(ctx, email, string(hash))
}

// Authenticate returns the stable identity for valid credentials.
func (u *Users) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	hash, err := u.store.PasswordHash(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return email, nil
}

func (u *Users) StoreMode() string { return u.store.Mode() }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// InMemoryUserStore keeps accounts for the process lifetime.
type InMemoryUserStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{hashes: make(map[string]string)}
}

func (s *InMemoryUserStore) Create(_ context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[email]; ok {
		return ErrUserExists
	}
	s.hashes[email] = passwordHash
	return nil
}

func (s *InMemoryUserStore) PasswordHash(_ context.Context, email string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.hashes[email]
	if !ok {
		return "", ErrUserNotFound
	}
	return hash, nil
}

func (s *InMemoryUserStore) Mode() string { return "in-memory" }

func (s *InMemoryUserStore) Close() error { return nil }

// PostgresUserStore persists accounts in PostgreSQL.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(ctx context.Context, databaseURL string) (*PostgresUserStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init user schema: %w", err)
	}
	return &PostgresUserStore{pool: pool}, nil
}

func (s *PostgresUserStore) Create(ctx context.Context, email, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES ($1, $2, $3)`,
		email, passwordHash, time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) PasswordHash(ctx context.Context, email string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE email=$1`, email).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	return hash, nil
}

func (s *PostgresUserStore) Mode() string { return "postgres" }

func (s *PostgresUserStore) Close() error {
	s.pool.Close()
	return nil
}

// NewUserStore creates a postgres-backed store when configured, otherwise in-memory.
func NewUserStore(ctx context.Context, databaseURL string) (UserStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryUserStore(), nil
	}
	return NewPostgresUserStore(ctx, databaseURL)
}
