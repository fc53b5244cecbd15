// Package gate decides whether a retrieval session may skip the typing
// challenge.
//
// The evaluator is a pure function of the current time, the vault's enabled
// scheduled unlock windows, and the vault's active emergency access request.
// It is evaluated once per retrieval session at load time; only an active
// emergency countdown is re-checked afterwards.
package gate

import "time"

// Decision is the outcome of gate evaluation.
type Decision int

const (
	// MustChallenge requires the typing challenge before the master
	// password step.
	MustChallenge Decision = iota
	// ScheduledBypass waives the challenge: the current time falls inside
	// an enabled scheduled unlock window.
	ScheduledBypass
	// EmergencyReady waives the challenge: an emergency request's delay
	// has elapsed.
	EmergencyReady
	// EmergencyPending means an emergency request exists but its unlock
	// time is still in the future.
	EmergencyPending
)

// String returns a stable name for the decision.
func (d Decision) String() string {
	switch d {
	case ScheduledBypass:
		return "scheduled-bypass"
	case EmergencyReady:
		return "emergency-ready"
	case EmergencyPending:
		return "emergency-pending"
	case MustChallenge:
		return "must-challenge"
	default:
		return "unknown"
	}
}

// Window is a recurring weekly unlock window in local wall-clock time.
// Start and End are "HH:MM:SS" strings compared lexically, which matches
// chronological order for zero-padded times. A window with End before Start
// never matches; midnight wraparound is intentionally not supported.
type Window struct {
	Day     time.Weekday
	Start   string
	End     string
	Enabled bool
}

// Contains reports whether now falls inside the window, inclusive on both
// ends at second precision. Disabled windows never match.
func (w Window) Contains(now time.Time) bool {
	if !w.Enabled {
		return false
	}
	if now.Weekday() != w.Day {
		return false
	}
	clock := now.Format("15:04:05")
	return clock >= w.Start && clock <= w.End
}

// Request is the active (not cancelled, not completed) emergency access
// request for a vault. Callers must filter out cancelled and completed
// requests before evaluation.
type Request struct {
	UnlockAt time.Time
}

// Evaluate runs the gate decision procedure. First match wins:
//
//  1. now inside any enabled window → ScheduledBypass
//  2. active request with now >= UnlockAt → EmergencyReady
//  3. active request with now < UnlockAt → EmergencyPending
//  4. otherwise → MustChallenge
func Evaluate(now time.Time, windows []Window, req *Request) Decision {
	for _, w := range windows {
		if w.Contains(now) {
			return ScheduledBypass
		}
	}
	if req != nil {
		if !now.Before(req.UnlockAt) {
			return EmergencyReady
		}
		return EmergencyPending
	}
	return MustChallenge
}
