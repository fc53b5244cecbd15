package gate

import (
	"testing"
	"time"
)

// wednesdayNoon is a Wednesday at 12:00:00 local time.
var wednesdayNoon = time.Date(2025, time.June, 4, 12, 0, 0, 0, time.Local)

func officeHours(enabled bool) Window {
	return Window{Day: time.Wednesday, Start: "09:00:00", End: "17:00:00", Enabled: enabled}
}

// TestEvaluateScheduled tests the scheduled-bypass gate
func TestEvaluateScheduled(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		windows []Window
		want    Decision
	}{
		{
			name:    "inside enabled window",
			now:     wednesdayNoon,
			windows: []Window{officeHours(true)},
			want:    ScheduledBypass,
		},
		{
			name:    "disabled window",
			now:     wednesdayNoon,
			windows: []Window{officeHours(false)},
			want:    MustChallenge,
		},
		{
			name:    "wrong day",
			now:     wednesdayNoon.AddDate(0, 0, 1),
			windows: []Window{officeHours(true)},
			want:    MustChallenge,
		},
		{
			name:    "inclusive start boundary",
			now:     time.Date(2025, time.June, 4, 9, 0, 0, 0, time.Local),
			windows: []Window{officeHours(true)},
			want:    ScheduledBypass,
		},
		{
			name:    "inclusive end boundary",
			now:     time.Date(2025, time.June, 4, 17, 0, 0, 0, time.Local),
			windows: []Window{officeHours(true)},
			want:    ScheduledBypass,
		},
		{
			name:    "one second past end",
			now:     time.Date(2025, time.June, 4, 17, 0, 1, 0, time.Local),
			windows: []Window{officeHours(true)},
			want:    MustChallenge,
		},
		{
			name: "second enabled window matches",
			now:  wednesdayNoon,
			windows: []Window{
				{Day: time.Monday, Start: "09:00:00", End: "17:00:00", Enabled: true},
				officeHours(true),
			},
			want: ScheduledBypass,
		},
		{
			name: "midnight wrapping window never matches",
			now:  time.Date(2025, time.June, 4, 23, 30, 0, 0, time.Local),
			windows: []Window{
				{Day: time.Wednesday, Start: "22:00:00", End: "02:00:00", Enabled: true},
			},
			want: MustChallenge,
		},
		{
			name:    "no windows",
			now:     wednesdayNoon,
			windows: nil,
			want:    MustChallenge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.now, tt.windows, nil); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestEvaluateEmergency tests the emergency gates
func TestEvaluateEmergency(t *testing.T) {
	now := wednesdayNoon

	t.Run("pending one second before unlock", func(t *testing.T) {
		req := &Request{UnlockAt: now.Add(time.Second)}
		if got := Evaluate(now, nil, req); got != EmergencyPending {
			t.Errorf("Evaluate() = %v, want EmergencyPending", got)
		}
	})

	t.Run("ready exactly at unlock", func(t *testing.T) {
		req := &Request{UnlockAt: now}
		if got := Evaluate(now, nil, req); got != EmergencyReady {
			t.Errorf("Evaluate() = %v, want EmergencyReady", got)
		}
	})

	t.Run("ready after unlock", func(t *testing.T) {
		req := &Request{UnlockAt: now.Add(-time.Hour)}
		if got := Evaluate(now, nil, req); got != EmergencyReady {
			t.Errorf("Evaluate() = %v, want EmergencyReady", got)
		}
	})

	t.Run("advancing the clock past unlock flips the decision", func(t *testing.T) {
		req := &Request{UnlockAt: now.Add(time.Second)}
		if got := Evaluate(now, nil, req); got != EmergencyPending {
			t.Fatalf("Evaluate() before unlock = %v, want EmergencyPending", got)
		}
		if got := Evaluate(now.Add(2*time.Second), nil, req); got != EmergencyReady {
			t.Errorf("Evaluate() after unlock = %v, want EmergencyReady", got)
		}
	})
}

// TestEvaluatePriority verifies the decision order: schedule beats emergency
func TestEvaluatePriority(t *testing.T) {
	req := &Request{UnlockAt: wednesdayNoon.Add(time.Hour)}
	got := Evaluate(wednesdayNoon, []Window{officeHours(true)}, req)
	if got != ScheduledBypass {
		t.Errorf("Evaluate() = %v, want ScheduledBypass over EmergencyPending", got)
	}

	req = &Request{UnlockAt: wednesdayNoon.Add(-time.Hour)}
	got = Evaluate(wednesdayNoon, []Window{officeHours(true)}, req)
	if got != ScheduledBypass {
		t.Errorf("Evaluate() = %v, want ScheduledBypass over EmergencyReady", got)
	}
}

// TestDecisionString covers decision names
func TestDecisionString(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{ScheduledBypass, "scheduled-bypass"},
		{EmergencyReady, "emergency-ready"},
		{EmergencyPending, "emergency-pending"},
		{MustChallenge, "must-challenge"},
		{Decision(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("Decision.String() = %q, want %q", got, tt.want)
		}
	}
}
