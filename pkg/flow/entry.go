// Package flow contains the controllers that drive passcode storage and
// retrieval. Both controllers are explicit state machines: every transition
// happens in a method call, the current time is always passed in, and nothing
// runs on a background timer. Callers own the clock.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pinlock-app/pinlock/pkg/crypto"
	"github.com/pinlock-app/pinlock/pkg/script"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var (
	// ErrEmptyName indicates a blank vault name.
	ErrEmptyName = errors.New("flow: vault name must not be empty")
	// ErrMasterTooShort indicates a master password under the minimum length.
	ErrMasterTooShort = errors.New("flow: master password must be at least 6 characters")
	// ErrMasterMismatch indicates the confirmation did not match.
	ErrMasterMismatch = errors.New("flow: master passwords do not match")
	// ErrInvalidState indicates a call that is not legal in the current state.
	ErrInvalidState = errors.New("flow: operation not valid in current state")
	// ErrWaitRequired indicates the current instruction is a timed wait and
	// cannot be confirmed manually.
	ErrWaitRequired = errors.New("flow: current instruction is a timed wait")
	// ErrWaitNotElapsed indicates the wait duration has not passed yet.
	ErrWaitNotElapsed = errors.New("flow: wait has not elapsed")
)

// MinMasterPasswordLength is the minimum accepted master password length.
const MinMasterPasswordLength = 6

// EntryState identifies a step of the storage flow.
type EntryState int

const (
	EntryCollectingName EntryState = iota
	EntryPresentingInstructions
	EntryPresentingVerification
	EntryAwaitingMaster
	EntryAwaitingMasterConfirm
	EntryPersisted
)

// String returns the state name.
func (s EntryState) String() string {
	switch s {
	case EntryCollectingName:
		return "collecting-name"
	case EntryPresentingInstructions:
		return "presenting-instructions"
	case EntryPresentingVerification:
		return "presenting-verification"
	case EntryAwaitingMaster:
		return "awaiting-master-password"
	case EntryAwaitingMasterConfirm:
		return "awaiting-master-confirmation"
	case EntryPersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// EntryFlow walks a user through storing a new passcode: two independently
// generated instruction scripts, then a master password that encrypts the PIN.
// The PIN and scripts live only in memory and are regenerated wholesale on
// Reset.
type EntryFlow struct {
	st      *store.Store
	gen     *script.Generator
	ownerID string

	state EntryState
	name  string
	pin   string

	// entry and verification scripts
	scripts [2][]script.Instruction
	step    int

	waitDeadline time.Time
	waiting      bool

	master string
}

// NewEntryFlow creates a storage flow for the given owner.
func NewEntryFlow(st *store.Store, gen *script.Generator, ownerID string) *EntryFlow {
	return &EntryFlow{st: st, gen: gen, ownerID: ownerID, state: EntryCollectingName}
}

// State returns the current state.
func (f *EntryFlow) State() EntryState { return f.state }

// SubmitName accepts the vault name, draws a fresh PIN and generates both
// scripts.
func (f *EntryFlow) SubmitName(name string) error {
	if f.state != EntryCollectingName {
		return ErrInvalidState
	}
	if name == "" {
		return ErrEmptyName
	}

	if err := f.regenerate(f.gen.NewPIN()); err != nil {
		return err
	}

	f.name = name
	f.state = EntryPresentingInstructions
	return nil
}

// regenerate replaces the PIN and both scripts.
func (f *EntryFlow) regenerate(pin string) error {
	for i := range f.scripts {
		s, err := f.gen.Generate(pin)
		if err != nil {
			return fmt.Errorf("flow: failed to generate script: %w", err)
		}
		f.scripts[i] = s
	}
	f.pin = pin
	f.step = 0
	f.waiting = false
	return nil
}

// Reset discards all progress, draws a brand-new PIN and regenerates both
// scripts. Only valid while a script is being presented.
func (f *EntryFlow) Reset() error {
	if f.state != EntryPresentingInstructions && f.state != EntryPresentingVerification {
		return ErrInvalidState
	}

	if err := f.regenerate(f.gen.NewPIN()); err != nil {
		return err
	}
	f.state = EntryPresentingInstructions
	return nil
}

// activeScript returns the script for the current presentation state.
func (f *EntryFlow) activeScript() []script.Instruction {
	if f.state == EntryPresentingVerification {
		return f.scripts[1]
	}
	return f.scripts[0]
}

// Current returns the instruction awaiting confirmation.
func (f *EntryFlow) Current() (script.Instruction, error) {
	if f.state != EntryPresentingInstructions && f.state != EntryPresentingVerification {
		return script.Instruction{}, ErrInvalidState
	}
	return f.activeScript()[f.step], nil
}

// Step reports the zero-based index of the current instruction and the
// length of the active script.
func (f *EntryFlow) Step() (int, int) {
	if f.state != EntryPresentingInstructions && f.state != EntryPresentingVerification {
		return 0, 0
	}
	return f.step, len(f.activeScript())
}

// Confirm acknowledges the current instruction and advances. Timed waits
// cannot be confirmed; use BeginWait and CompleteWait.
func (f *EntryFlow) Confirm() error {
	cur, err := f.Current()
	if err != nil {
		return err
	}
	if cur.Kind == script.KindWait {
		return ErrWaitRequired
	}
	f.advance()
	return nil
}

// BeginWait starts the timed wait for the current instruction and returns its
// deadline.
func (f *EntryFlow) BeginWait(now time.Time) (time.Time, error) {
	cur, err := f.Current()
	if err != nil {
		return time.Time{}, err
	}
	if cur.Kind != script.KindWait {
		return time.Time{}, ErrInvalidState
	}
	f.waitDeadline = now.Add(time.Duration(cur.Seconds) * time.Second)
	f.waiting = true
	return f.waitDeadline, nil
}

// CompleteWait advances past a wait instruction once its deadline has passed.
func (f *EntryFlow) CompleteWait(now time.Time) error {
	if !f.waiting {
		return ErrInvalidState
	}
	if now.Before(f.waitDeadline) {
		return ErrWaitNotElapsed
	}
	f.waiting = false
	f.advance()
	return nil
}

// advance moves to the next instruction, crossing script and state
// boundaries.
func (f *EntryFlow) advance() {
	f.step++
	if f.step < len(f.activeScript()) {
		return
	}
	f.step = 0
	if f.state == EntryPresentingInstructions {
		f.state = EntryPresentingVerification
	} else {
		f.state = EntryAwaitingMaster
	}
}

// SubmitMasterPassword accepts the first master password entry.
func (f *EntryFlow) SubmitMasterPassword(password string) error {
	if f.state != EntryAwaitingMaster {
		return ErrInvalidState
	}
	if len(password) < MinMasterPasswordLength {
		return ErrMasterTooShort
	}
	f.master = password
	f.state = EntryAwaitingMasterConfirm
	return nil
}

// ConfirmMasterPassword verifies the confirmation, encrypts the PIN and
// persists the vault record. Encryption and the insert are one unit: the
// insert is never attempted when encryption fails, and on any failure the
// flow stays in the confirmation state.
func (f *EntryFlow) ConfirmMasterPassword(ctx context.Context, confirmation string) (*store.Vault, error) {
	if f.state != EntryAwaitingMasterConfirm {
		return nil, ErrInvalidState
	}
	if confirmation != f.master {
		return nil, ErrMasterMismatch
	}

	secret, err := crypto.Encrypt(f.pin, f.master)
	if err != nil {
		return nil, fmt.Errorf("flow: encryption failed: %w", err)
	}

	v := &store.Vault{OwnerID: f.ownerID, Name: f.name, Secret: secret}
	if err := f.st.InsertVault(ctx, v); err != nil {
		return nil, err
	}

	f.master = ""
	f.pin = ""
	f.state = EntryPersisted
	return v, nil
}
