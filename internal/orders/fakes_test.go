package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/google/uuid"
)

// memStore keeps orders in memory and applies Update atomically under one mutex.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]Order
	history map[string][]StatusHistory
	failOn  string // fail Create with errStore when set to "create"
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]Order{}, history: map[string][]StatusHistory{}}
}

func (m *memStore) Create(_ context.Context, o Order, first StatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "create" {
		return errStore
	}
	m.orders[o.ID] = clone(o)
	m.history[o.ID] = append(m.history[o.ID], first)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return clone(o), nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) History(_ context.Context, orderID string) ([]StatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusHistory(nil), m.history[orderID]...), nil
}

func (m *memStore) Update(_ context.Context, id string, fn func(o *Order) (*Change, error)) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o := clone(cur)
	change, err := fn(&o)
	if err != nil {
		return Order{}, err
	}
	if change == nil {
		return clone(cur), nil
	}
	if cur.Status != o.Status {
		return Order{}, ErrInvalidTransition
	}
	m.history[id] = append(m.history[id], StatusHistory{
		ID:         uuid.NewString(),
		OrderID:    id,
		FromStatus: cur.Status,
		ToStatus:   change.To,
		Note:       change.Note,
		ChangedBy:  change.ChangedBy,
		CreatedAt:  o.UpdatedAt,
	})
	o.Status = change.To
	m.orders[id] = o
	return clone(o), nil
}

func clone(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	return o
}

type fakeCart struct {
	lines map[string][]events.ItemSnapshot
	err   error
}

func (f fakeCart) Snapshot(_ context.Context, userID string) ([]events.ItemSnapshot, error) {
	return f.lines[userID], f.err
}
