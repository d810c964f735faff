package chat

import (
	"context"
	"errors"
	"sync"

	"taboon/internal/models"
)

type fakeOrders struct {
	mu        sync.Mutex
	next      int64
	created   []*models.Order
	failNext  bool
	failWrite bool
	nextCalls int
}

func newFakeOrders() *fakeOrders { return &fakeOrders{next: 1000} }

func (f *fakeOrders) NextID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls++
	if f.failNext {
		return 0, &models.PersistenceError{Op: "next id", Err: errors.New("locked")}
	}
	f.next++
	return f.next, nil
}

func (f *fakeOrders) Create(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return &models.PersistenceError{Op: "create", Err: errors.New("disk full")}
	}
	f.created = append(f.created, order)
	return nil
}

type fakeCustomers struct {
	mu       sync.Mutex
	profiles map[string]models.CustomerProfile
	patches  []models.ProfilePatch
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{profiles: make(map[string]models.CustomerProfile)}
}

func (f *fakeCustomers) Lookup(ctx context.Context, fp string) (*models.CustomerProfile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[fp]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (f *fakeCustomers) Upsert(ctx context.Context, fp string, patch models.ProfilePatch) (*models.CustomerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	merged := models.Reconcile(f.profiles[fp], patch)
	merged.Fingerprint = fp
	merged.VisitCount++
	f.profiles[fp] = merged
	return &merged, nil
}
