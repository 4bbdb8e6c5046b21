package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/barrio-seguro-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures persistence operations needed by handlers.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// MessageLedger is the append-only, per-district ordered message log.
type MessageLedger interface {
	// Append assigns the next order of msg.District and persists the message.
	// Order assignment and the write either both happen or neither does.
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	// Recent returns up to limit of the newest messages in ascending order.
	Recent(ctx context.Context, district string, limit int) ([]models.Message, error)
}

// Store bundles everything a backend must provide.
type Store interface {
	UserStore
	MessageLedger
	Close()
}
