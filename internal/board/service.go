// Package board implements the per-district message board on top of a
// storage.MessageLedger.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hongminglow/barrio-seguro-be/internal/auth"
	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

// DefaultRecentLimit is how many messages a board read returns.
const DefaultRecentLimit = 6

var (
	// ErrInvalidMessage is returned when the district or content is empty.
	ErrInvalidMessage = errors.New("district and message content are required")
	// ErrSaveFailed hides persistence failures from callers.
	ErrSaveFailed = errors.New("failed to save message")
	// ErrLoadFailed hides read failures from callers.
	ErrLoadFailed = errors.New("failed to load messages")
)

// Post is a message submitted by an authenticated neighbor.
type Post struct {
	Content string
	IsAlert bool
}

// Service appends to and reads from district boards.
type Service struct {
	ledger storage.MessageLedger
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService builds a Service backed by ledger. Timestamps are cut to
// milliseconds, the coarsest precision any backend stores.
func NewService(ledger storage.MessageLedger, logger *slog.Logger) *Service {
	return &Service{
		ledger: ledger,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:  uuid.NewString,
	}
}

// Append posts to the author's own district, taken from the verified claims.
func (s *Service) Append(ctx context.Context, author auth.Claims, post Post) (models.Message, error) {
	district := strings.TrimSpace(author.District)
	content := strings.TrimSpace(post.Content)
	if district == "" || content == "" {
		return models.Message{}, ErrInvalidMessage
	}

	msg := models.Message{
		ID:             s.newID(),
		Department:     author.Department,
		Province:       author.Province,
		District:       district,
		FullName:       author.FullName(),
		MessageContent: content,
		CreatedAt:      s.now(),
		IsAlert:        post.IsAlert,
	}
	stored, err := s.ledger.Append(ctx, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "append message failed", "district", district, "user_id", author.UserID, "error", err)
		return models.Message{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	s.logger.DebugContext(ctx, "message appended", "district", district, "order", stored.Order, "alert", stored.IsAlert)
	return stored, nil
}

// Recent returns the last DefaultRecentLimit messages of district, oldest first.
func (s *Service) Recent(ctx context.Context, district string) ([]models.Message, error) {
	district = strings.TrimSpace(district)
	if district == "" {
		return nil, ErrInvalidMessage
	}
	msgs, err := s.ledger.Recent(ctx, district, DefaultRecentLimit)
	if err != nil {
		s.logger.ErrorContext(ctx, "load recent messages failed", "district", district, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return msgs, nil
}
