package model

import (
	"testing"
	"time"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "10.00", want: 1000},
		{in: "10", want: 1000},
		{in: "10.5", want: 1050},
		{in: "0", want: 0},
		{in: "0.99", want: 99},
		{in: " 12.30 ", want: 1230},
		{in: "", wantErr: true},
		{in: "-1.00", wantErr: true},
		{in: "10.005", wantErr: true},
		{in: "10.", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePrice(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParsePrice(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(1000); got != "10.00" {
		t.Fatalf("FormatPrice(1000) = %q", got)
	}
	if got := FormatPrice(5); got != "0.05" {
		t.Fatalf("FormatPrice(5) = %q", got)
	}
}

func TestParseWithdrawalReason(t *testing.T) {
	for _, valid := range []string{
		"prefer-not-to-say", "illness", "no-longer-interested", "change-of-plans",
		"no-funding", "inconvenient-location", "clash-of-pd", "wrong-event", "other",
	} {
		if _, ok := ParseWithdrawalReason(valid); !ok {
			t.Fatalf("expected %q to parse", valid)
		}
	}
	if _, ok := ParseWithdrawalReason("rained"); ok {
		t.Fatal("expected unknown reason to be rejected")
	}
}

func TestStatusCountsTowardCapacity(t *testing.T) {
	if !StatusPending.CountsTowardCapacity() || !StatusApproved.CountsTowardCapacity() {
		t.Fatal("pending and approved must occupy a place")
	}
	if StatusDeclined.CountsTowardCapacity() {
		t.Fatal("declined must not occupy a place")
	}
}

func TestEventReadOnly(t *testing.T) {
	now := time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{name: "upcoming", event: Event{EndTime: &future}, want: false},
		{name: "no window yet", event: Event{}, want: false},
		{name: "finished", event: Event{EndTime: &past}, want: true},
		{name: "cancelled", event: Event{Cancelled: true, EndTime: &future}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.ReadOnly(now); got != tt.want {
				t.Fatalf("ReadOnly = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFreeEvent(t *testing.T) {
	free := []ParticipantType{{Name: "Student", PriceCents: 0}}
	if !FreeEvent(free) {
		t.Fatal("all-zero prices must mean free")
	}
	if !FreeEvent(nil) {
		t.Fatal("no ticket classes must mean free")
	}
	paid := []ParticipantType{{Name: "Student", PriceCents: 0}, {Name: "Member", PriceCents: 1000}}
	if FreeEvent(paid) {
		t.Fatal("a priced class must make the event non-free")
	}
}

func TestModeSelfService(t *testing.T) {
	if !ModeRegister.SelfService() || !ModeApply.SelfService() {
		t.Fatal("register and apply take submissions")
	}
	if ModeExternal.SelfService() || ModeInvite.SelfService() {
		t.Fatal("external and invite must not take submissions")
	}
	if ModeRegister.Valid() == false || RegistrationMode("walk-in").Valid() {
		t.Fatal("mode validity check broken")
	}
}
