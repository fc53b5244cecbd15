package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pinlock-app/pinlock/pkg/challenge"
	"github.com/pinlock-app/pinlock/pkg/crypto"
	"github.com/pinlock-app/pinlock/pkg/gate"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var (
	// ErrInvalidMasterPassword indicates decryption failed. Wrong password
	// and corrupt ciphertext are deliberately indistinguishable.
	ErrInvalidMasterPassword = errors.New("flow: invalid master password")
	// ErrChallengeIncomplete indicates the typing challenge is not finished.
	ErrChallengeIncomplete = errors.New("flow: typing challenge not complete")
	// ErrNoEmergencyRequest indicates no active emergency request exists.
	ErrNoEmergencyRequest = errors.New("flow: no active emergency request")
)

// DefaultEmergencyDelay is the wait imposed on emergency access requests.
const DefaultEmergencyDelay = 24 * time.Hour

// RetrievalState identifies a step of the retrieval flow.
type RetrievalState int

const (
	RetrievalChecking RetrievalState = iota
	RetrievalScheduled
	RetrievalEmergencyPending
	RetrievalTyping
	RetrievalMaster
	RetrievalReveal
)

// String returns the state name.
func (s RetrievalState) String() string {
	switch s {
	case RetrievalChecking:
		return "checking"
	case RetrievalScheduled:
		return "scheduled"
	case RetrievalEmergencyPending:
		return "emergency-pending"
	case RetrievalTyping:
		return "typing"
	case RetrievalMaster:
		return "master"
	case RetrievalReveal:
		return "reveal"
	default:
		return "unknown"
	}
}

// RetrievalFlow gates access to a stored passcode. The access gate is
// evaluated once at Load; after that the only unattended transition is the
// emergency countdown reaching zero, driven by the caller through Tick.
type RetrievalFlow struct {
	st       *store.Store
	ownerID  string
	passages []string
	delay    time.Duration

	state     RetrievalState
	vault     *store.Vault
	challenge *challenge.Challenge
	emergency *store.EmergencyRequest

	secret string
}

// NewRetrievalFlow creates a retrieval flow for the given owner. passages
// must contain at least one typing passage; delay <= 0 selects the default
// emergency delay.
func NewRetrievalFlow(st *store.Store, ownerID string, passages []string, delay time.Duration) *RetrievalFlow {
	if delay <= 0 {
		delay = DefaultEmergencyDelay
	}
	return &RetrievalFlow{
		st:       st,
		ownerID:  ownerID,
		passages: passages,
		delay:    delay,
		state:    RetrievalChecking,
	}
}

// State returns the current state.
func (f *RetrievalFlow) State() RetrievalState { return f.state }

// Vault returns the loaded vault record.
func (f *RetrievalFlow) Vault() *store.Vault { return f.vault }

// Challenge returns the typing challenge, nil outside the typing state.
func (f *RetrievalFlow) Challenge() *challenge.Challenge { return f.challenge }

// Load fetches the vault and its gate inputs, evaluates the gate once and
// enters the resulting state. A vault the owner cannot see surfaces
// store.ErrNotFound unchanged.
func (f *RetrievalFlow) Load(ctx context.Context, vaultID string, now time.Time) error {
	if f.state != RetrievalChecking {
		return ErrInvalidState
	}

	v, err := f.st.GetVault(ctx, f.ownerID, vaultID)
	if err != nil {
		return err
	}

	schedules, err := f.st.ListSchedules(ctx, f.ownerID, v.ID)
	if err != nil {
		return err
	}
	windows := make([]gate.Window, len(schedules))
	for i, s := range schedules {
		windows[i] = s.Window()
	}

	var req *gate.Request
	active, err := f.st.LatestActiveRequest(ctx, f.ownerID, v.ID)
	switch {
	case err == nil:
		req = &gate.Request{UnlockAt: active.UnlockAt}
		f.emergency = active
	case errors.Is(err, store.ErrNotFound):
	default:
		return err
	}

	f.vault = v
	switch gate.Evaluate(now, windows, req) {
	case gate.ScheduledBypass:
		f.state = RetrievalScheduled
	case gate.EmergencyReady:
		f.state = RetrievalMaster
	case gate.EmergencyPending:
		f.state = RetrievalEmergencyPending
	default:
		return f.startChallenge()
	}
	return nil
}

// startChallenge builds a fresh typing challenge and enters the typing state.
func (f *RetrievalFlow) startChallenge() error {
	c, err := challenge.New(f.passages)
	if err != nil {
		return err
	}
	f.challenge = c
	f.state = RetrievalTyping
	return nil
}

// RequestEmergency creates a delayed-access request with
// unlock_at = now + delay and moves to the countdown. A still-active prior
// request surfaces store.ErrActiveRequestExists and the flow stays in typing.
func (f *RetrievalFlow) RequestEmergency(ctx context.Context, now time.Time) error {
	if f.state != RetrievalTyping {
		return ErrInvalidState
	}

	req := &store.EmergencyRequest{
		VaultID:     f.vault.ID,
		OwnerID:     f.ownerID,
		RequestedAt: now,
		UnlockAt:    now.Add(f.delay),
	}
	if err := f.st.InsertEmergencyRequest(ctx, req); err != nil {
		return err
	}

	f.emergency = req
	f.state = RetrievalEmergencyPending
	return nil
}

// CancelEmergency marks the active request cancelled and returns to a fresh
// typing challenge.
func (f *RetrievalFlow) CancelEmergency(ctx context.Context) error {
	if f.state != RetrievalEmergencyPending {
		return ErrInvalidState
	}
	if f.emergency == nil {
		return ErrNoEmergencyRequest
	}

	if err := f.st.CancelRequest(ctx, f.ownerID, f.emergency.ID); err != nil {
		return err
	}
	f.emergency = nil
	return f.startChallenge()
}

// Remaining returns the time left on the emergency countdown, zero once the
// unlock time has passed. It is a pure function of the stored unlock
// timestamp, so it stays correct across process restarts.
func (f *RetrievalFlow) Remaining(now time.Time) time.Duration {
	if f.emergency == nil {
		return 0
	}
	if d := f.emergency.UnlockAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Tick advances emergency-pending to master once the countdown reaches zero.
// It reports whether the state changed.
func (f *RetrievalFlow) Tick(now time.Time) bool {
	if f.state != RetrievalEmergencyPending {
		return false
	}
	if f.Remaining(now) > 0 {
		return false
	}
	f.state = RetrievalMaster
	return true
}

// ProceedToMaster moves on to the master password step. Valid from the
// scheduled bypass, or from typing once every passage is complete.
func (f *RetrievalFlow) ProceedToMaster() error {
	switch f.state {
	case RetrievalScheduled:
	case RetrievalTyping:
		if !f.challenge.Done() {
			return ErrChallengeIncomplete
		}
	default:
		return ErrInvalidState
	}
	f.state = RetrievalMaster
	return nil
}

// SubmitMaster decrypts the stored secret. Any decryption failure surfaces
// the one generic error. On success the flow enters reveal, first marking an
// active emergency request completed; a failure recording the completion
// keeps the flow in master and the secret is not released.
func (f *RetrievalFlow) SubmitMaster(ctx context.Context, password string, now time.Time) error {
	if f.state != RetrievalMaster {
		return ErrInvalidState
	}

	plaintext, err := crypto.Decrypt(f.vault.Secret, password)
	if err != nil {
		return ErrInvalidMasterPassword
	}

	if f.emergency != nil && f.emergency.Active() {
		if err := f.st.CompleteRequest(ctx, f.ownerID, f.emergency.ID, now); err != nil {
			return fmt.Errorf("flow: failed to record emergency completion: %w", err)
		}
		completed := now
		f.emergency.CompletedAt = &completed
	}

	f.secret = plaintext
	f.state = RetrievalReveal
	return nil
}

// Secret returns the decrypted passcode, only while in reveal.
func (f *RetrievalFlow) Secret() (string, error) {
	if f.state != RetrievalReveal {
		return "", ErrInvalidState
	}
	return f.secret, nil
}

// Leave discards the revealed secret. Callers must invoke it when the reveal
// screen is dismissed; the secret is never cached past that point.
func (f *RetrievalFlow) Leave() {
	f.secret = ""
	if f.state == RetrievalReveal {
		f.state = RetrievalChecking
		f.vault = nil
		f.challenge = nil
		f.emergency = nil
	}
}
