package capacity

import (
	"testing"
	"time"

	"eventdesk/internal/model"
)

func intp(v int) *int { return &v }

func TestComputePercent(t *testing.T) {
	tests := []struct {
		name      string
		cap       *int
		confirmed int
		want      float64
	}{
		{name: "one of ten", cap: intp(10), confirmed: 1, want: 10.0},
		{name: "full", cap: intp(4), confirmed: 4, want: 100.0},
		{name: "empty", cap: intp(50), confirmed: 0, want: 0.0},
		{name: "oversubscribed keeps raw ratio", cap: intp(10), confirmed: 12, want: 120.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Compute(tt.cap, tt.confirmed)
			if f.Percent == nil {
				t.Fatal("expected a percentage")
			}
			if *f.Percent != tt.want {
				t.Fatalf("percent = %v, want %v", *f.Percent, tt.want)
			}
		})
	}
}

func TestComputeUnlimited(t *testing.T) {
	f := Compute(nil, 250)
	if f.Percent != nil {
		t.Fatalf("unlimited capacity must omit the percentage, got %v", *f.Percent)
	}
	if f.Confirmed != 250 {
		t.Fatalf("confirmed = %d, want 250", f.Confirmed)
	}
}

func TestPublishProblems(t *testing.T) {
	now := time.Now()

	ready := &model.Event{
		StartTime: &now, EndTime: &now,
		RegistrationOpens: &now, RegistrationCloses: &now,
	}
	if problems := PublishProblems(ready); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}

	noWindow := &model.Event{RegistrationOpens: &now, RegistrationCloses: &now}
	if problems := PublishProblems(noWindow); len(problems) != 1 {
		t.Fatalf("expected one problem for the missing window, got %v", problems)
	}

	bare := &model.Event{}
	if problems := PublishProblems(bare); len(problems) != 2 {
		t.Fatalf("expected two problems, got %v", problems)
	}
}
