package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

func newMessage(district, content string) models.Message {
	return models.Message{
		ID:             uuid.NewString(),
		Department:     "Lima",
		Province:       "Lima",
		District:       district,
		FullName:       "Ana Quispe",
		MessageContent: content,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestAppend_SequentialOrders(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		got, err := s.Append(ctx, newMessage("Miraflores", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(i), got.Order)
	}
}

func TestAppend_ConcurrentOrdersAreGaplessAndUnique(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	orders := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.Append(ctx, newMessage("Surco", fmt.Sprintf("m%d", i)))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			orders <- got.Order
		}(i)
	}
	wg.Wait()
	close(orders)

	var seen []int
	for o := range orders {
		seen = append(seen, int(o))
	}
	sort.Ints(seen)
	require.Len(t, seen, n)
	for i, o := range seen {
		assert.Equal(t, i+1, o)
	}
}

func TestAppend_DistrictsAreIndependent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, newMessage("Barranco", "x"))
		require.NoError(t, err)
	}
	first, err := s.Append(ctx, newMessage("Lince", "y"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Order)

	next, err := s.Append(ctx, newMessage("Barranco", "z"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.Order)
}

func TestAppend_DuplicateIDRejected(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	msg := newMessage("Barranco", "x")
	_, err := s.Append(ctx, msg)
	require.NoError(t, err)

	_, err = s.Append(ctx, msg)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	again, err := s.Append(ctx, newMessage("Barranco", "y"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Order, "a rejected append must not consume an order")
}

func TestRecent_ReturnsLastWindowAscending(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		_, err := s.Append(ctx, newMessage("Miraflores", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, "Miraflores", 6)
	require.NoError(t, err)

	var orders []int64
	for _, m := range got {
		orders = append(orders, m.Order)
	}
	assert.Equal(t, []int64{5, 6, 7, 8, 9, 10}, orders)
}

func TestRecent_ShortAndEmptyDistricts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	empty, err := s.Recent(ctx, "Nowhere", 6)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i := 0; i < 2; i++ {
		_, err := s.Append(ctx, newMessage("Lince", "x"))
		require.NoError(t, err)
	}
	short, err := s.Recent(ctx, "Lince", 6)
	require.NoError(t, err)
	assert.Len(t, short, 2)
}

func TestRecent_ReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Append(ctx, newMessage("Lince", "original"))
	require.NoError(t, err)

	got, err := s.Recent(ctx, "Lince", 6)
	require.NoError(t, err)
	got[0].MessageContent = "mutated"

	again, err := s.Recent(ctx, "Lince", 6)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].MessageContent)
}

func TestUsers_UniqueEmail(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.CreateUser(ctx, models.User{ID: uuid.NewString(), Email: "a@x.com"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, models.User{ID: uuid.NewString(), Email: " A@X.com "})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	found, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	byID, err := s.FindByID(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, found, byID)

	_, err = s.FindByEmail(ctx, "b@x.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.FindByID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
