package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"user-service/users/domain"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements domain.Store with database/sql. Queries use $N
// placeholders, which both pgx and sqlite accept.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

type SQLStoreOption func(*SQLStore)

func WithStoreClock(now func() time.Time) SQLStoreOption {
	return func(s *SQLStore) { s.now = now }
}

func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenDB picks a driver from the URL scheme: postgres:// and postgresql://
// go to pgx, sqlite:// and file: go to sqlite3.
func OpenDB(rawURL string) (*sql.DB, error) {
	driver, dsn, err := driverFor(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" && strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func driverFor(rawURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return "pgx", rawURL, nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(rawURL, "sqlite://"), nil
	case strings.HasPrefix(rawURL, "file:"):
		return "sqlite3", rawURL, nil
	}
	return "", "", fmt.Errorf("unsupported database url scheme: %q", rawURL)
}

const schema = `CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// EnsureSchema creates the users table when it is missing. It is the only
// bootstrap step this service performs.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return domain.E(domain.KindStore, "store.schema", err)
	}
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`, id.String(),
	).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.E(domain.KindNotFound, "store.get", domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, domain.E(domain.KindStore, "store.get", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *SQLStore) Create(ctx context.Context, in domain.NewUser) (domain.User, error) {
	u := domain.User{
		ID:    uuid.New(),
		Name:  in.Name,
		Email: in.Email,
		// postgres keeps microseconds, truncate so the returned value matches a later read
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID.String(), u.Name, u.Email, u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, domain.E(domain.KindStore, "store.create", err)
	}
	return u, nil
}

func (s *SQLStore) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, created_at FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, domain.E(domain.KindStore, "store.list", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, limit)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, domain.E(domain.KindStore, "store.list", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindStore, "store.list", err)
	}
	return users, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, domain.E(domain.KindStore, "store.count", err)
	}
	return n, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.E(domain.KindStore, "store.ping", err)
	}
	return nil
}

var (
	_ domain.Store  = (*SQLStore)(nil)
	_ domain.Pinger = (*SQLStore)(nil)
)
