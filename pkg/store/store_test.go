package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pinlock-app/pinlock/pkg/crypto"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pinlock.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVault(owner, name string) *Vault {
	return &Vault{
		OwnerID: owner,
		Name:    name,
		Secret: crypto.EncryptedSecret{
			Ciphertext: "Y2lwaGVydGV4dA==",
			IV:         "bm9uY2Vub25jZQ==",
			Salt:       "c2FsdHNhbHRzYWx0c2E=",
		},
	}
}

// TestVaultCRUD exercises insert, get, list and delete
func TestVaultCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v := testVault("owner-1", "iOS Screen Time")
	if err := s.InsertVault(ctx, v); err != nil {
		t.Fatalf("InsertVault() error = %v", err)
	}
	if v.ID == "" {
		t.Fatal("InsertVault() did not assign an id")
	}
	if v.CreatedAt.IsZero() {
		t.Fatal("InsertVault() did not assign a creation timestamp")
	}

	got, err := s.GetVault(ctx, "owner-1", v.ID)
	if err != nil {
		t.Fatalf("GetVault() error = %v", err)
	}
	if got.Name != "iOS Screen Time" {
		t.Errorf("Name = %q, want %q", got.Name, "iOS Screen Time")
	}
	if got.Secret != v.Secret {
		t.Errorf("Secret = %+v, want %+v", got.Secret, v.Secret)
	}

	byName, err := s.GetVaultByName(ctx, "owner-1", "iOS Screen Time")
	if err != nil {
		t.Fatalf("GetVaultByName() error = %v", err)
	}
	if byName.ID != v.ID {
		t.Errorf("GetVaultByName() id = %q, want %q", byName.ID, v.ID)
	}

	list, err := s.ListVaults(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListVaults() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListVaults() returned %d vaults, want 1", len(list))
	}

	if err := s.DeleteVault(ctx, "owner-1", v.ID); err != nil {
		t.Fatalf("DeleteVault() error = %v", err)
	}
	if _, err := s.GetVault(ctx, "owner-1", v.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVault() after delete error = %v, want ErrNotFound", err)
	}
}

// TestVaultOwnerScoping verifies rows are invisible to other owners
func TestVaultOwnerScoping(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v := testVault("owner-1", "Mine")
	if err := s.InsertVault(ctx, v); err != nil {
		t.Fatalf("InsertVault() error = %v", err)
	}

	if _, err := s.GetVault(ctx, "owner-2", v.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVault() as other owner error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteVault(ctx, "owner-2", v.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteVault() as other owner error = %v, want ErrNotFound", err)
	}
	list, err := s.ListVaults(ctx, "owner-2")
	if err != nil {
		t.Fatalf("ListVaults() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListVaults() as other owner returned %d vaults, want 0", len(list))
	}
}

// TestInsertVaultEmptyName verifies the name precondition
func TestInsertVaultEmptyName(t *testing.T) {
	s := testStore(t)
	if err := s.InsertVault(context.Background(), testVault("o", "   ")); !errors.Is(err, ErrEmptyName) {
		t.Errorf("InsertVault() error = %v, want ErrEmptyName", err)
	}
}

// TestScheduleCRUD exercises schedule rows, ordering and validation
func TestScheduleCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v := testVault("owner-1", "Vault")
	if err := s.InsertVault(ctx, v); err != nil {
		t.Fatalf("InsertVault() error = %v", err)
	}

	add := func(day time.Weekday, start, end string) *ScheduledUnlock {
		sc := &ScheduledUnlock{
			VaultID: v.ID, OwnerID: "owner-1",
			DayOfWeek: day, StartTime: start, EndTime: end, Enabled: true,
		}
		if err := s.InsertSchedule(ctx, sc); err != nil {
			t.Fatalf("InsertSchedule() error = %v", err)
		}
		return sc
	}

	add(time.Friday, "18:00:00", "20:00:00")
	monday := add(time.Monday, "09:00:00", "10:00:00")
	// A wrapping window is accepted as-is.
	add(time.Monday, "22:00:00", "02:00:00")

	list, err := s.ListSchedules(ctx, "owner-1", v.ID)
	if err != nil {
		t.Fatalf("ListSchedules() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListSchedules() returned %d rows, want 3", len(list))
	}
	// Ordered by day, then start time.
	if list[0].DayOfWeek != time.Monday || list[0].StartTime != "09:00:00" {
		t.Errorf("first schedule = %v %s, want Monday 09:00:00", list[0].DayOfWeek, list[0].StartTime)
	}
	if list[2].DayOfWeek != time.Friday {
		t.Errorf("last schedule day = %v, want Friday", list[2].DayOfWeek)
	}

	if err := s.SetScheduleEnabled(ctx, "owner-1", monday.ID, false); err != nil {
		t.Fatalf("SetScheduleEnabled() error = %v", err)
	}
	list, _ = s.ListSchedules(ctx, "owner-1", v.ID)
	if list[0].Enabled {
		t.Error("schedule still enabled after toggle")
	}

	if err := s.DeleteSchedule(ctx, "owner-1", monday.ID); err != nil {
		t.Fatalf("DeleteSchedule() error = %v", err)
	}
	list, _ = s.ListSchedules(ctx, "owner-1", v.ID)
	if len(list) != 2 {
		t.Errorf("ListSchedules() after delete returned %d rows, want 2", len(list))
	}

	// Validation.
	bad := &ScheduledUnlock{VaultID: v.ID, OwnerID: "owner-1", DayOfWeek: 7, StartTime: "09:00:00", EndTime: "10:00:00"}
	if err := s.InsertSchedule(ctx, bad); !errors.Is(err, ErrInvalidDay) {
		t.Errorf("InsertSchedule() day=7 error = %v, want ErrInvalidDay", err)
	}
	bad = &ScheduledUnlock{VaultID: v.ID, OwnerID: "owner-1", DayOfWeek: time.Monday, StartTime: "9:00", EndTime: "10:00:00"}
	if err := s.InsertSchedule(ctx, bad); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("InsertSchedule() start=9:00 error = %v, want ErrInvalidTime", err)
	}
}

// TestEmergencyRequestLifecycle exercises request create, uniqueness, cancel
// and complete
func TestEmergencyRequestLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v := testVault("owner-1", "Vault")
	if err := s.InsertVault(ctx, v); err != nil {
		t.Fatalf("InsertVault() error = %v", err)
	}

	now := time.Now()
	req := &EmergencyRequest{
		VaultID: v.ID, OwnerID: "owner-1",
		RequestedAt: now, UnlockAt: now.Add(24 * time.Hour),
	}
	if err := s.InsertEmergencyRequest(ctx, req); err != nil {
		t.Fatalf("InsertEmergencyRequest() error = %v", err)
	}

	// Second active request for the same vault is rejected.
	dup := &EmergencyRequest{
		VaultID: v.ID, OwnerID: "owner-1",
		RequestedAt: now.Add(time.Minute), UnlockAt: now.Add(25 * time.Hour),
	}
	if err := s.InsertEmergencyRequest(ctx, dup); !errors.Is(err, ErrActiveRequestExists) {
		t.Fatalf("InsertEmergencyRequest() duplicate error = %v, want ErrActiveRequestExists", err)
	}

	active, err := s.LatestActiveRequest(ctx, "owner-1", v.ID)
	if err != nil {
		t.Fatalf("LatestActiveRequest() error = %v", err)
	}
	if active.ID != req.ID {
		t.Errorf("LatestActiveRequest() id = %q, want %q", active.ID, req.ID)
	}
	if !active.Active() {
		t.Error("request should be active")
	}
	if !active.UnlockAt.Equal(req.UnlockAt) {
		t.Errorf("UnlockAt round-trip: got %v, want %v", active.UnlockAt, req.UnlockAt)
	}

	// Cancelling frees the slot for a new request.
	if err := s.CancelRequest(ctx, "owner-1", req.ID); err != nil {
		t.Fatalf("CancelRequest() error = %v", err)
	}
	if _, err := s.LatestActiveRequest(ctx, "owner-1", v.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestActiveRequest() after cancel error = %v, want ErrNotFound", err)
	}
	if err := s.InsertEmergencyRequest(ctx, dup); err != nil {
		t.Fatalf("InsertEmergencyRequest() after cancel error = %v", err)
	}

	// Completing a request deactivates it.
	if err := s.CompleteRequest(ctx, "owner-1", dup.ID, now.Add(25*time.Hour)); err != nil {
		t.Fatalf("CompleteRequest() error = %v", err)
	}
	if _, err := s.LatestActiveRequest(ctx, "owner-1", v.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestActiveRequest() after complete error = %v, want ErrNotFound", err)
	}

	// Unknown ids.
	if err := s.CancelRequest(ctx, "owner-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CancelRequest() unknown id error = %v, want ErrNotFound", err)
	}
	if err := s.CompleteRequest(ctx, "owner-1", "missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteRequest() unknown id error = %v, want ErrNotFound", err)
	}
}

// TestTimestampRoundTrip verifies absolute timestamps survive reopening the
// database
func TestTimestampRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pinlock.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	now := time.Now()
	req := &EmergencyRequest{
		VaultID: "v-1", OwnerID: "owner-1",
		RequestedAt: now, UnlockAt: now.Add(24 * time.Hour),
	}
	if err := s.InsertEmergencyRequest(ctx, req); err != nil {
		t.Fatalf("InsertEmergencyRequest() error = %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	got, err := s2.LatestActiveRequest(ctx, "owner-1", "v-1")
	if err != nil {
		t.Fatalf("LatestActiveRequest() after reopen error = %v", err)
	}
	if !got.UnlockAt.Equal(req.UnlockAt) {
		t.Errorf("UnlockAt after reopen = %v, want %v", got.UnlockAt, req.UnlockAt)
	}
}
