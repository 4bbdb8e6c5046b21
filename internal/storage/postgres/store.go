package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// Store provides Postgres-backed persistence for users and district messages.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and applies pending migrations.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

const userColumns = `id, dni, first_name, last_name, phone, email, password_hash, department, province,
	district, address_line1, birth_date, terms_accepted, ip_signup, signup_date, created_at`

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query,
		user.ID, user.DNI, user.FirstName, user.LastName, user.Phone, user.Email, user.PasswordHash,
		user.Department, user.Province, user.District, user.AddressLine1, user.BirthDate,
		user.TermsAccepted, user.IPSignup, user.SignupDate,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return created, nil
}

// FindByEmail fetches a user by email address, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(s.pool.QueryRow(ctx, query, email))
}

// FindByID fetches a user by id. Ids that are not UUIDs match nothing.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, storage.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(s.pool.QueryRow(ctx, query, id))
	if isInvalidText(err) {
		return models.User{}, storage.ErrNotFound
	}
	return user, err
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.DNI, &user.FirstName, &user.LastName, &user.Phone, &user.Email,
		&user.PasswordHash, &user.Department, &user.Province, &user.District, &user.AddressLine1,
		&user.BirthDate, &user.TermsAccepted, &user.IPSignup, &user.SignupDate, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// The upsert takes a row lock on the district counter, so concurrent appends
// to one district queue behind each other until the holder commits or rolls back.
const nextOrderSQL = `
	INSERT INTO district_counters (district, last_order) VALUES ($1, 1)
	ON CONFLICT (district) DO UPDATE SET last_order = district_counters.last_order + 1
	RETURNING last_order`

const insertMessageSQL = `
	INSERT INTO district_messages
		(id, department, province, district, fullname, message_content, "order", created_at, updated_at, is_alert)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Append assigns the next district order and stores the message in one transaction.
func (s *Store) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, nextOrderSQL, msg.District).Scan(&msg.Order); err != nil {
			return fmt.Errorf("next order: %w", err)
		}
		_, err := tx.Exec(ctx, insertMessageSQL,
			msg.ID, msg.Department, msg.Province, msg.District, msg.FullName, msg.MessageContent,
			msg.Order, msg.CreatedAt, msg.UpdatedAt, msg.IsAlert,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return models.Message{}, storage.ErrAlreadyExists
		}
		return models.Message{}, err
	}
	return msg, nil
}

// Recent returns the newest limit messages of district in ascending order.
func (s *Store) Recent(ctx context.Context, district string, limit int) ([]models.Message, error) {
	out := []models.Message{}
	if limit <= 0 {
		return out, nil
	}
	const query = `
		SELECT id, department, province, district, fullname, message_content, "order", created_at, updated_at, is_alert
		FROM district_messages
		WHERE district = $1
		ORDER BY "order" DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, district, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Department, &m.Province, &m.District, &m.FullName,
			&m.MessageContent, &m.Order, &m.CreatedAt, &m.UpdatedAt, &m.IsAlert); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		if m.UpdatedAt != nil {
			u := m.UpdatedAt.UTC()
			m.UpdatedAt = &u
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	slices.Reverse(out)
	return out, nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

func isInvalidText(err error) bool {
	return hasCode(err, invalidTextRepresentation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
