package report

import (
	"errors"
	"testing"

	"eventdesk/internal/model"
)

func entry(eventName string, paid bool) RegistrationEntry {
	return RegistrationEntry{
		Registration: model.Registration{Paid: paid},
		Event:        model.Event{Name: eventName},
	}
}

func TestBuildSelectedFieldsInTableOrder(t *testing.T) {
	entries := []RegistrationEntry{
		entry("GopherConf", true),
		entry("GopherConf", false),
	}

	rows, err := Registrations().Build([]string{"paid", "event_name"}, entries)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	header := rows[0]
	if len(header) != 2 || header[0] != "event_name" || header[1] != "paid" {
		t.Fatalf("header = %v, want [event_name paid]", header)
	}
	if rows[1][0] != "GopherConf" || rows[1][1] != "true" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][0] != "GopherConf" || rows[2][1] != "false" {
		t.Fatalf("row 2 = %v", rows[2])
	}
}

func TestBuildUnknownField(t *testing.T) {
	_, err := Registrations().Build([]string{"event_name", "shoe_size"}, nil)
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestBuildNoItemsStillEmitsHeader(t *testing.T) {
	rows, err := Registrations().Build([]string{"email"}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "email" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestJoinMultiValued(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{name: "none", values: nil, want: ""},
		{name: "single renders bare", values: []string{"Main Hall"}, want: "Main Hall"},
		{name: "joined with ampersand", values: []string{"Main Hall", "Annex"}, want: "Main Hall & Annex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Join(tt.values); got != tt.want {
				t.Fatalf("Join(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"attendance 2026", "Day-1_report", "x"} {
		if err := ValidateName(ok); err != nil {
			t.Fatalf("ValidateName(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"", "../../etc/passwd", "report?.csv", "naïve"} {
		if err := ValidateName(bad); !errors.Is(err, ErrBadName) {
			t.Fatalf("ValidateName(%q) = %v, want ErrBadName", bad, err)
		}
	}
}
