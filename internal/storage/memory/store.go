// Package memory keeps users and district messages in process memory. It is
// the default backend for local development and the reference used in tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is safe for concurrent use. Appends to one district are serialized by
// that district's lock; other districts proceed independently.
type Store struct {
	usersMu sync.RWMutex
	users   map[string]models.User
	byEmail map[string]string

	districtsMu sync.Mutex
	districts   map[string]*districtLog
}

type districtLog struct {
	mu       sync.RWMutex
	messages []models.Message
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:     make(map[string]models.User),
		byEmail:   make(map[string]string),
		districts: make(map[string]*districtLog),
	}
}

// Close is a no-op.
func (s *Store) Close() {}

// CreateUser inserts the user, enforcing a unique email.
func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	key := emailKey(user.Email)
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	if _, ok := s.users[user.ID]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	s.users[user.ID] = user
	s.byEmail[key] = user.ID
	return user, nil
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

// FindByID fetches a user by its server generated id.
func (s *Store) FindByID(_ context.Context, id string) (models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

// Append assigns order = len(log)+1 under the district lock.
func (s *Store) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	log := s.district(msg.District)

	log.mu.Lock()
	defer log.mu.Unlock()
	for _, existing := range log.messages {
		if existing.ID == msg.ID {
			return models.Message{}, storage.ErrAlreadyExists
		}
	}
	msg.Order = int64(len(log.messages)) + 1
	log.messages = append(log.messages, msg)
	return msg, nil
}

// Recent returns the newest limit messages of district in ascending order.
func (s *Store) Recent(ctx context.Context, district string, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.Message{}, nil
	}
	s.districtsMu.Lock()
	log, ok := s.districts[district]
	s.districtsMu.Unlock()
	if !ok {
		return []models.Message{}, nil
	}

	log.mu.RLock()
	defer log.mu.RUnlock()
	start := max(len(log.messages)-limit, 0)
	return slices.Clone(log.messages[start:]), nil
}

func (s *Store) district(name string) *districtLog {
	s.districtsMu.Lock()
	defer s.districtsMu.Unlock()
	log, ok := s.districts[name]
	if !ok {
		log = &districtLog{}
		s.districts[name] = log
	}
	return log
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
