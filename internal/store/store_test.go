package store

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taboon/internal/database"
	"taboon/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "orders.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func newOrder(t *testing.T, s *Orders, mutate func(*models.Order)) *models.Order {
	t.Helper()
	ctx := context.Background()
	id, err := s.NextID(ctx)
	require.NoError(t, err)

	order := &models.Order{
		ID:           id,
		CustomerName: "Sara",
		Items:        "Pizza",
		Total:        20,
		OrderType:    models.OrderTypeDineIn,
		Location:     models.DefaultManualLocation,
		Status:       models.OrderStatusNew,
		Source:       models.OrderSourceManual,
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, s.Create(ctx, order))
	return order
}

func TestNextIDStartsAfterSeedAndNeverRepeats(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()

	first := newOrder(t, s, nil)
	assert.Equal(t, database.SequenceSeed+1, first.ID)

	require.NoError(t, s.Delete(ctx, first.ID))
	second := newOrder(t, s, nil)
	assert.Greater(t, second.ID, first.ID)

	_, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	third, err := s.NextID(ctx)
	require.NoError(t, err)
	assert.Greater(t, third, second.ID)
}

func TestNextIDConcurrentCallersGetDistinctIDs(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()

	const workers = 8
	const perWorker = 10

	var (
		mu  sync.Mutex
		ids []int64
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := s.NextID(ctx)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids = append(ids, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, ids, workers*perWorker)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, ids[i-1]+1, ids[i])
	}
}

func TestCreateRequiresAssignedID(t *testing.T) {
	s := NewOrders(newTestDB(t))
	err := s.Create(context.Background(), &models.Order{CustomerName: "x"})

	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGetAndNotFound(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()
	created := newOrder(t, s, func(o *models.Order) { o.Phone = "0599" })

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sara", got.CustomerName)
	assert.Equal(t, "0599", got.Phone)
	assert.Equal(t, models.OrderStatusNew, got.Status)
	assert.Nil(t, got.ReadyNotification)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, 42)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListNewestFirstWithTypeFilter(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()

	a := newOrder(t, s, nil)
	b := newOrder(t, s, func(o *models.Order) { o.OrderType = models.OrderTypeDelivery })
	c := newOrder(t, s, nil)

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	deliveries, err := s.List(ctx, ListOptions{OrderType: models.OrderTypeDelivery})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, b.ID, deliveries[0].ID)

	limited, err := s.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateMergesPatch(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()
	created := newOrder(t, s, func(o *models.Order) {
		o.CreatedAt = time.Now().Add(-time.Hour)
	})

	status := models.OrderStatusReady
	note := "extra cheese"
	notif := models.ReadyNotification{Sent: true, Message: "ready!", Timestamp: time.Now().UTC()}
	updated, err := s.Update(ctx, created.ID, models.OrderPatch{
		Status:            &status,
		Notes:             &note,
		ReadyNotification: &notif,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReady, updated.Status)
	assert.Equal(t, "extra cheese", updated.Notes)
	require.NotNil(t, updated.ReadyNotification)
	assert.Equal(t, "ready!", updated.ReadyNotification.Message)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.Equal(t, "Pizza", updated.Items, "unpatched fields are kept")

	_, err = s.Update(ctx, 9999, models.OrderPatch{Notes: &note})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()
	created := newOrder(t, s, nil)

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err := s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, created.ID), models.ErrNotFound)
}

func TestDeleteCreatedBefore(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()

	old := newOrder(t, s, func(o *models.Order) { o.CreatedAt = time.Now().Add(-72 * time.Hour) })
	fresh := newOrder(t, s, nil)

	n, err := s.DeleteCreatedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestSinceAndReadySince(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()

	a := newOrder(t, s, nil)
	b := newOrder(t, s, nil)

	newer, err := s.Since(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, b.ID, newer[0].ID)

	status := models.OrderStatusReady
	stamp := time.Now().UTC()
	_, err = s.Update(ctx, b.ID, models.OrderPatch{
		Status:            &status,
		ReadyNotification: &models.ReadyNotification{Sent: true, Message: "m", Timestamp: stamp},
	})
	require.NoError(t, err)

	ready, err := s.ReadySince(ctx, stamp.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, b.ID, ready[0].ID)

	ready, err = s.ReadySince(ctx, stamp.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestStats(t *testing.T) {
	s := NewOrders(newTestDB(t))
	ctx := context.Background()
	dayStart := time.Now().Add(-time.Hour)

	newOrder(t, s, func(o *models.Order) { o.Status = models.OrderStatusDelivered; o.Total = 30 })
	newOrder(t, s, func(o *models.Order) {
		o.Status = models.OrderStatusDelivered
		o.Total = 12.5
		o.OrderType = models.OrderTypeCarPickup
	})
	newOrder(t, s, func(o *models.Order) { o.Total = 99 })
	newOrder(t, s, func(o *models.Order) {
		o.Status = models.OrderStatusDelivered
		o.Total = 1000
		o.CreatedAt = time.Now().Add(-48 * time.Hour)
	})

	stats, err := s.Stats(ctx, dayStart)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Today)
	assert.InDelta(t, 42.5, stats.TodayRevenue, 0.001)
	assert.Equal(t, 3, stats.ByStatus[models.OrderStatusDelivered])
	assert.Equal(t, 1, stats.ByStatus[models.OrderStatusNew])
	assert.Equal(t, 0, stats.ByStatus[models.OrderStatusReady])
	assert.Equal(t, 3, stats.ByType[models.OrderTypeDineIn])
	assert.Equal(t, 1, stats.ByType[models.OrderTypeCarPickup])
	assert.Equal(t, 0, stats.ByType[models.OrderTypeDelivery])

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, s.Ping(ctx))
}

func strPtr(s string) *string { return &s }

func TestCustomerLookupUnknownIsNotAnError(t *testing.T) {
	c := NewCustomers(newTestDB(t))

	profile, found, err := c.Lookup(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, profile)
}

func TestCustomerUpsertStoredFieldsWin(t *testing.T) {
	c := NewCustomers(newTestDB(t))
	ctx := context.Background()

	first, err := c.Upsert(ctx, "fp-1", models.ProfilePatch{Name: strPtr("Ali")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.VisitCount)

	second, err := c.Upsert(ctx, "fp-1", models.ProfilePatch{Name: strPtr("Ayman"), Phone: strPtr("123")})
	require.NoError(t, err)
	assert.Equal(t, "Ali", second.Name)
	assert.Equal(t, "123", second.Phone)
	assert.Equal(t, 2, second.VisitCount)
	assert.False(t, second.LastVisit.Before(first.LastVisit))

	stored, found, err := c.Lookup(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ali", stored.Name)
	assert.Equal(t, "123", stored.Phone)
}

func TestCustomerUpsertRequiresFingerprint(t *testing.T) {
	c := NewCustomers(newTestDB(t))
	_, err := c.Upsert(context.Background(), "", models.ProfilePatch{})

	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCustomerConcurrentFirstVisitsAreAllCounted(t *testing.T) {
	c := NewCustomers(newTestDB(t))
	ctx := context.Background()

	const visits = 8
	var wg sync.WaitGroup
	for i := 0; i < visits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Upsert(ctx, "fp-race", models.ProfilePatch{Name: strPtr("Ali")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, found, err := c.Lookup(ctx, "fp-race")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, visits, stored.VisitCount)
	assert.Equal(t, "Ali", stored.Name)
}
