package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// MemoryRepository хранит попытки в памяти процесса. Используется, когда DATABASE_URI не задан.
type MemoryRepository struct {
	mu       sync.RWMutex
	attempts map[string]model.Attempt
	numbers  map[string]string
	now      func() time.Time
}

// NewMemoryRepository создаёт пустой журнал попыток.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		attempts: make(map[string]model.Attempt),
		numbers:  make(map[string]string),
		now:      time.Now,
	}
}

// Close ничего не освобождает.
func (r *MemoryRepository) Close() error { return nil }

// Reserve записывает новую попытку и закрепляет за ней номер бронирования.
func (r *MemoryRepository) Reserve(_ context.Context, a model.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.numbers[a.BookingNumber]; ok {
		return fmt.Errorf("%w: %s held by %s", model.ErrBookingNumberReused, a.BookingNumber, owner)
	}
	if _, ok := r.attempts[a.ID]; ok {
		return fmt.Errorf("%w: attempt %s already exists", model.ErrBookingNumberReused, a.ID)
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	a.UpdatedAt = a.CreatedAt
	r.attempts[a.ID] = a
	r.numbers[a.BookingNumber] = a.ID
	return nil
}

// UpdateState меняет состояние попытки.
func (r *MemoryRepository) UpdateState(_ context.Context, id string, state model.CheckoutState) error {
	return r.modify(id, func(a *model.Attempt) { a.State = state })
}

// SetPaymentRef сохраняет токен или идентификатор платежа шлюза.
func (r *MemoryRepository) SetPaymentRef(_ context.Context, id, ref string) error {
	return r.modify(id, func(a *model.Attempt) { a.PaymentRef = ref })
}

func (r *MemoryRepository) modify(id string, fn func(*model.Attempt)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[id]
	if !ok {
		return fmt.Errorf("attempt %s: %w", id, model.ErrNotFound)
	}
	fn(&a)
	a.UpdatedAt = r.now()
	r.attempts[id] = a
	return nil
}

// Get возвращает копию попытки.
func (r *MemoryRepository) Get(_ context.Context, id string) (*model.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt %s: %w", id, model.ErrNotFound)
	}
	return &a, nil
}

// ListPending возвращает попытки, ожидающие шлюз с момента раньше before, старые первыми.
func (r *MemoryRepository) ListPending(_ context.Context, before time.Time) ([]model.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Attempt
	for _, a := range r.attempts {
		if a.State == model.StateGatewayPending && a.UpdatedAt.Before(before) {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.Before(res[j].UpdatedAt) })
	return res, nil
}
