package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// countingRepo counts lookups that reach the database.
type countingRepo struct {
	*SQLiteRepository
	finds atomic.Int64
}

func (c *countingRepo) FindByExternalID(ctx context.Context, uid string) (*Device, error) {
	c.finds.Add(1)
	return c.SQLiteRepository.FindByExternalID(ctx, uid)
}

func newTestRegistry(t *testing.T) (*Registry, *countingRepo) {
	t.Helper()
	db := setupTestDB(t)
	repo := &countingRepo{SQLiteRepository: NewSQLiteRepository(db.Sqlx())}
	return NewRegistry(repo), repo
}

func TestRegistry_RefreshCache(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()
	createTestDevice(t, repo.SQLiteRepository, "dev-1", "temp001")
	createTestDevice(t, repo.SQLiteRepository, "dev-2", "temp002")

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if n := reg.GetDeviceCount(); n != 2 {
		t.Fatalf("GetDeviceCount() = %d, want 2", n)
	}

	d, err := reg.FindByExternalID(ctx, "temp002")
	if err != nil {
		t.Fatalf("FindByExternalID() error = %v", err)
	}
	if d.ID != "dev-2" {
		t.Errorf("ID = %q, want dev-2", d.ID)
	}
	if n := repo.finds.Load(); n != 0 {
		t.Errorf("repository lookups = %d, want 0 after refresh", n)
	}
	if st := reg.GetStats(); st.Hits != 1 || st.Misses != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRegistry_ReadThrough(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()

	// Created behind the registry's back, e.g. by the provision command.
	createTestDevice(t, repo.SQLiteRepository, "dev-1", "temp001")

	for i := 0; i < 3; i++ {
		if _, err := reg.FindByExternalID(ctx, "temp001"); err != nil {
			t.Fatalf("FindByExternalID() error = %v", err)
		}
	}
	if n := repo.finds.Load(); n != 1 {
		t.Errorf("repository lookups = %d, want 1", n)
	}

	if _, err := reg.FindByExternalID(ctx, "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("unknown uid error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := reg.FindByExternalID(ctx, "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("unknown uid error = %v, want ErrDeviceNotFound", err)
	}
	if n := repo.finds.Load(); n != 3 {
		t.Errorf("repository lookups = %d, want 3 (misses are not cached)", n)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	d := &Device{ID: "dev-1", UID: "temp001", Label: strPtr("Salon"), CreatedAt: ts(0)}
	if err := reg.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	*d.Label = "changed by caller"

	got, err := reg.FindByExternalID(ctx, "temp001")
	if err != nil {
		t.Fatalf("FindByExternalID() error = %v", err)
	}
	if *got.Label != "Salon" {
		t.Errorf("Label = %q, cache shares memory with the caller", *got.Label)
	}
	*got.Label = "changed again"

	again, _ := reg.FindByExternalID(ctx, "temp001") //nolint:errcheck // found above
	if *again.Label != "Salon" {
		t.Errorf("Label = %q, cache shares memory with a returned device", *again.Label)
	}
}

func TestRegistry_CreateExisting(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()
	createTestDevice(t, repo.SQLiteRepository, "dev-1", "temp001")

	err := reg.Create(ctx, &Device{ID: "dev-9", UID: "temp001", CreatedAt: ts(0)})
	if !errors.Is(err, ErrDeviceExists) {
		t.Fatalf("Create() error = %v, want ErrDeviceExists", err)
	}
	d, err := reg.FindByExternalID(ctx, "temp001")
	if err != nil || d.ID != "dev-1" {
		t.Errorf("FindByExternalID() = %+v, %v; want the stored device", d, err)
	}
}

func TestRegistry_UpdateLastSeen(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()
	createTestDevice(t, repo.SQLiteRepository, "dev-1", "temp001")
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if err := reg.UpdateLastSeen(ctx, "dev-1", ts(5)); err != nil {
		t.Fatalf("UpdateLastSeen() error = %v", err)
	}
	d, err := reg.FindByExternalID(ctx, "temp001")
	if err != nil {
		t.Fatalf("FindByExternalID() error = %v", err)
	}
	if d.LastSeenAt == nil || !d.LastSeenAt.Equal(ts(5)) {
		t.Errorf("LastSeenAt = %v, want %v", d.LastSeenAt, ts(5))
	}
}

func TestRegistry_PlacementsNotCached(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()
	createTestDevice(t, repo.SQLiteRepository, "dev-1", "temp001")

	if _, err := reg.Assign(ctx, "temp001", "salon", ts(1)); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	// Moved directly in the repository.
	if _, err := repo.Assign(ctx, "temp001", "bureau", ts(2)); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	p, err := reg.CurrentPlacement(ctx, "temp001")
	if err != nil {
		t.Fatalf("CurrentPlacement() error = %v", err)
	}
	if p == nil || p.RoomID != "bureau" {
		t.Errorf("CurrentPlacement() = %+v, want bureau", p)
	}
}

func TestRegistry_AutoProvisionConcurrent(t *testing.T) {
	reg, repo := newTestRegistry(t)
	policy := NewAutoProvision(reg)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	var created atomic.Int64
	ids := make([]string, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, isNew, err := policy.Resolve(ctx, "temp042", ts(1))
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			if isNew {
				created.Add(1)
			}
			ids[i] = d.ID
		}()
	}
	wg.Wait()

	if n := created.Load(); n != 1 {
		t.Errorf("created = %d, want 1", n)
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Errorf("resolved ids differ: %v", ids)
			break
		}
	}
	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("stored devices = %d, want 1", len(devices))
	}
}
