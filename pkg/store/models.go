package store

import (
	"time"

	"github.com/pinlock-app/pinlock/pkg/crypto"
	"github.com/pinlock-app/pinlock/pkg/gate"
)

// Vault is a stored encrypted secret with its metadata. The encrypted triple
// is produced by a single cipher call and is never mutated in place; only
// schedules and emergency requests reference a vault after creation.
type Vault struct {
	ID        string
	OwnerID   string
	Name      string
	Secret    crypto.EncryptedSecret
	CreatedAt time.Time
}

// ScheduledUnlock is a recurring weekly window during which the typing
// challenge is waived for one vault. Times are "HH:MM:SS" local wall-clock
// strings at second precision.
type ScheduledUnlock struct {
	ID        string
	VaultID   string
	OwnerID   string
	DayOfWeek time.Weekday
	StartTime string
	EndTime   string
	Enabled   bool
	CreatedAt time.Time
}

// Window converts the row into the gate evaluator's input form.
func (s ScheduledUnlock) Window() gate.Window {
	return gate.Window{
		Day:     s.DayOfWeek,
		Start:   s.StartTime,
		End:     s.EndTime,
		Enabled: s.Enabled,
	}
}

// EmergencyRequest is a user-initiated, time-delayed override for one vault.
// A request is active while it is neither cancelled nor completed; at most
// one active request per vault exists at a time.
type EmergencyRequest struct {
	ID          string
	VaultID     string
	OwnerID     string
	RequestedAt time.Time
	UnlockAt    time.Time
	CompletedAt *time.Time
	Cancelled   bool
	CreatedAt   time.Time
}

// Active reports whether the request still counts toward gate evaluation.
func (r EmergencyRequest) Active() bool {
	return !r.Cancelled && r.CompletedAt == nil
}
