package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pinlock-app/pinlock/pkg/crypto"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var testPassages = []string{"discipline is choosing what you want most"}

// seedVault inserts a vault holding "4821" under "secret1".
func seedVault(t *testing.T, st *store.Store) *store.Vault {
	t.Helper()
	secret, err := crypto.Encrypt("4821", "secret1")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	v := &store.Vault{OwnerID: "owner-1", Name: "Test", Secret: secret}
	if err := st.InsertVault(context.Background(), v); err != nil {
		t.Fatalf("InsertVault() error = %v", err)
	}
	return v
}

// typePassage types the current passage exactly.
func typePassage(t *testing.T, f *RetrievalFlow) {
	t.Helper()
	c := f.Challenge()
	for _, r := range c.Passage() {
		if !c.TypeRune(r) {
			t.Fatalf("TypeRune(%q) rejected", r)
		}
		if c.Done() {
			break
		}
	}
}

// wednesdayNoon is inside business hours on Wednesday, June 4th 2025.
var wednesdayNoon = time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

// TestRetrievalTypingPath covers the default gate outcome end to end
func TestRetrievalTypingPath(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	f := NewRetrievalFlow(st, "owner-1", testPassages, 0)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.State() != RetrievalTyping {
		t.Fatalf("state = %v, want typing", f.State())
	}

	if err := f.ProceedToMaster(); !errors.Is(err, ErrChallengeIncomplete) {
		t.Fatalf("ProceedToMaster() before typing error = %v, want ErrChallengeIncomplete", err)
	}

	typePassage(t, f)
	if !f.Challenge().Done() {
		t.Fatal("challenge not done after typing the passage")
	}
	if f.Challenge().Errors() != 0 {
		t.Errorf("challenge errors = %d, want 0", f.Challenge().Errors())
	}
	if err := f.ProceedToMaster(); err != nil {
		t.Fatalf("ProceedToMaster() error = %v", err)
	}

	// Wrong password is one generic error and the flow stays put.
	if err := f.SubmitMaster(ctx, "wrong-password", wednesdayNoon); !errors.Is(err, ErrInvalidMasterPassword) {
		t.Fatalf("SubmitMaster(wrong) error = %v, want ErrInvalidMasterPassword", err)
	}
	if f.State() != RetrievalMaster {
		t.Fatalf("state after wrong password = %v, want master", f.State())
	}

	if err := f.SubmitMaster(ctx, "secret1", wednesdayNoon); err != nil {
		t.Fatalf("SubmitMaster() error = %v", err)
	}
	secret, err := f.Secret()
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	if secret != "4821" {
		t.Errorf("Secret() = %q, want %q", secret, "4821")
	}

	f.Leave()
	if _, err := f.Secret(); !errors.Is(err, ErrInvalidState) {
		t.Error("Secret() after Leave() should fail")
	}
	if f.secret != "" {
		t.Error("secret retained after Leave()")
	}
}

// TestRetrievalScheduledBypass verifies an enabled window skips the challenge
func TestRetrievalScheduledBypass(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	sched := &store.ScheduledUnlock{
		VaultID: v.ID, OwnerID: "owner-1",
		DayOfWeek: time.Wednesday, StartTime: "09:00:00", EndTime: "17:00:00",
		Enabled: true,
	}
	if err := st.InsertSchedule(ctx, sched); err != nil {
		t.Fatalf("InsertSchedule() error = %v", err)
	}

	f := NewRetrievalFlow(st, "owner-1", testPassages, 0)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.State() != RetrievalScheduled {
		t.Fatalf("state = %v, want scheduled", f.State())
	}

	if err := f.ProceedToMaster(); err != nil {
		t.Fatalf("ProceedToMaster() error = %v", err)
	}
	if err := f.SubmitMaster(ctx, "secret1", wednesdayNoon); err != nil {
		t.Fatalf("SubmitMaster() error = %v", err)
	}
}

// TestRetrievalScheduleDisabled verifies a disabled window falls back to
// typing
func TestRetrievalScheduleDisabled(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	sched := &store.ScheduledUnlock{
		VaultID: v.ID, OwnerID: "owner-1",
		DayOfWeek: time.Wednesday, StartTime: "09:00:00", EndTime: "17:00:00",
	}
	if err := st.InsertSchedule(ctx, sched); err != nil {
		t.Fatalf("InsertSchedule() error = %v", err)
	}

	f := NewRetrievalFlow(st, "owner-1", testPassages, 0)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.State() != RetrievalTyping {
		t.Errorf("state = %v, want typing", f.State())
	}
}

// TestRetrievalEmergencyLifecycle covers request, countdown, auto-advance
// and completion
func TestRetrievalEmergencyLifecycle(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	f := NewRetrievalFlow(st, "owner-1", testPassages, 24*time.Hour)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := f.RequestEmergency(ctx, wednesdayNoon); err != nil {
		t.Fatalf("RequestEmergency() error = %v", err)
	}
	if f.State() != RetrievalEmergencyPending {
		t.Fatalf("state = %v, want emergency-pending", f.State())
	}
	if got := f.Remaining(wednesdayNoon); got != 24*time.Hour {
		t.Errorf("Remaining() = %v, want 24h", got)
	}

	// Countdown is a function of the absolute unlock time.
	if f.Tick(wednesdayNoon.Add(23 * time.Hour)) {
		t.Error("Tick() advanced before the delay elapsed")
	}
	unlocked := wednesdayNoon.Add(24 * time.Hour)
	if !f.Tick(unlocked) {
		t.Fatal("Tick() did not advance at the unlock time")
	}
	if f.State() != RetrievalMaster {
		t.Fatalf("state = %v, want master", f.State())
	}

	if err := f.SubmitMaster(ctx, "secret1", unlocked); err != nil {
		t.Fatalf("SubmitMaster() error = %v", err)
	}

	// Completion is recorded: no active request remains.
	if _, err := st.LatestActiveRequest(ctx, "owner-1", v.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LatestActiveRequest() after completion error = %v, want ErrNotFound", err)
	}
}

// TestRetrievalEmergencyCancel verifies cancelling returns to a fresh
// challenge
func TestRetrievalEmergencyCancel(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	f := NewRetrievalFlow(st, "owner-1", testPassages, 24*time.Hour)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := f.RequestEmergency(ctx, wednesdayNoon); err != nil {
		t.Fatalf("RequestEmergency() error = %v", err)
	}

	if err := f.CancelEmergency(ctx); err != nil {
		t.Fatalf("CancelEmergency() error = %v", err)
	}
	if f.State() != RetrievalTyping {
		t.Fatalf("state = %v, want typing", f.State())
	}
	if f.Challenge().Buffer() != "" {
		t.Error("challenge buffer not fresh after cancel")
	}

	// The slot is free again.
	if err := f.RequestEmergency(ctx, wednesdayNoon.Add(time.Minute)); err != nil {
		t.Fatalf("RequestEmergency() after cancel error = %v", err)
	}
}

// TestRetrievalDuplicateEmergency verifies an already-active request is
// surfaced and the flow stays in typing
func TestRetrievalDuplicateEmergency(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	f := NewRetrievalFlow(st, "owner-1", testPassages, 24*time.Hour)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Another session created a request after this flow loaded.
	other := &store.EmergencyRequest{
		VaultID: v.ID, OwnerID: "owner-1",
		RequestedAt: wednesdayNoon, UnlockAt: wednesdayNoon.Add(24 * time.Hour),
	}
	if err := st.InsertEmergencyRequest(ctx, other); err != nil {
		t.Fatalf("InsertEmergencyRequest() error = %v", err)
	}

	if err := f.RequestEmergency(ctx, wednesdayNoon); !errors.Is(err, store.ErrActiveRequestExists) {
		t.Fatalf("RequestEmergency() error = %v, want ErrActiveRequestExists", err)
	}
	if f.State() != RetrievalTyping {
		t.Errorf("state = %v, want typing", f.State())
	}
}

// TestRetrievalLoadEmergencyReady verifies a matured request maps straight
// to master
func TestRetrievalLoadEmergencyReady(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)
	ctx := context.Background()

	req := &store.EmergencyRequest{
		VaultID: v.ID, OwnerID: "owner-1",
		RequestedAt: wednesdayNoon.Add(-25 * time.Hour),
		UnlockAt:    wednesdayNoon.Add(-time.Hour),
	}
	if err := st.InsertEmergencyRequest(ctx, req); err != nil {
		t.Fatalf("InsertEmergencyRequest() error = %v", err)
	}

	f := NewRetrievalFlow(st, "owner-1", testPassages, 0)
	if err := f.Load(ctx, v.ID, wednesdayNoon); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.State() != RetrievalMaster {
		t.Fatalf("state = %v, want master", f.State())
	}
}

// TestRetrievalLoadNotFound verifies unknown and foreign vaults fail alike
func TestRetrievalLoadNotFound(t *testing.T) {
	st := testFlowStore(t)
	v := seedVault(t, st)

	f := NewRetrievalFlow(st, "owner-2", testPassages, 0)
	if err := f.Load(context.Background(), v.ID, wednesdayNoon); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load() as other owner error = %v, want store.ErrNotFound", err)
	}
}
