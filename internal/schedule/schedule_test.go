package schedule

import (
	"testing"
	"time"

	"eventdesk/internal/model"
)

func at(day, hour int) time.Time {
	return time.Date(2026, time.September, day, hour, 0, 0, 0, time.UTC)
}

func TestWindowEmpty(t *testing.T) {
	_, _, ok := Window(nil)
	if ok {
		t.Fatal("expected ok=false for empty session collection")
	}
}

func TestWindowSpansAllSessions(t *testing.T) {
	tests := []struct {
		name      string
		sessions  []model.Session
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name: "single session",
			sessions: []model.Session{
				{StartTime: at(1, 9), EndTime: at(1, 12)},
			},
			wantStart: at(1, 9),
			wantEnd:   at(1, 12),
		},
		{
			name: "same day morning and afternoon",
			sessions: []model.Session{
				{StartTime: at(1, 9), EndTime: at(1, 12)},
				{StartTime: at(1, 13), EndTime: at(1, 16)},
			},
			wantStart: at(1, 9),
			wantEnd:   at(1, 16),
		},
		{
			name: "insertion order irrelevant",
			sessions: []model.Session{
				{StartTime: at(3, 13), EndTime: at(3, 16)},
				{StartTime: at(1, 9), EndTime: at(1, 12)},
				{StartTime: at(2, 10), EndTime: at(2, 11)},
			},
			wantStart: at(1, 9),
			wantEnd:   at(3, 16),
		},
		{
			name: "nested session does not shrink the window",
			sessions: []model.Session{
				{StartTime: at(1, 9), EndTime: at(1, 18)},
				{StartTime: at(1, 10), EndTime: at(1, 11)},
			},
			wantStart: at(1, 9),
			wantEnd:   at(1, 18),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := Window(tt.sessions)
			if !ok {
				t.Fatal("expected ok=true")
			}
			if !start.Equal(tt.wantStart) {
				t.Fatalf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Fatalf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestWindowIdempotent(t *testing.T) {
	sessions := []model.Session{
		{StartTime: at(1, 9), EndTime: at(1, 12)},
		{StartTime: at(2, 13), EndTime: at(2, 16)},
	}
	s1, e1, _ := Window(sessions)
	s2, e2, _ := Window(sessions)
	if !s1.Equal(s2) || !e1.Equal(e2) {
		t.Fatalf("recomputation changed the window: (%v,%v) vs (%v,%v)", s1, e1, s2, e2)
	}
}

func TestBuildEmpty(t *testing.T) {
	if days := Build(nil, time.UTC); days != nil {
		t.Fatalf("expected no days, got %d", len(days))
	}
}

func TestBuildOneDayTwoSlots(t *testing.T) {
	sessions := []model.Session{
		{ID: 2, StartTime: at(1, 13), EndTime: at(1, 16)},
		{ID: 1, StartTime: at(1, 9), EndTime: at(1, 12)},
	}
	days := Build(sessions, time.UTC)
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	if len(days[0].Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(days[0].Slots))
	}
	if days[0].Slots[0].Sessions[0].ID != 1 || days[0].Slots[1].Sessions[0].ID != 2 {
		t.Fatal("slots are not ordered by start time")
	}
}

func TestBuildParallelSessionsShareSlot(t *testing.T) {
	sessions := []model.Session{
		{ID: 1, StartTime: at(1, 9), EndTime: at(1, 10)},
		{ID: 2, StartTime: at(1, 9), EndTime: at(1, 10)},
		{ID: 3, StartTime: at(1, 9), EndTime: at(1, 11)},
	}
	days := Build(sessions, time.UTC)
	if len(days) != 1 || len(days[0].Slots) != 2 {
		t.Fatalf("expected 1 day with 2 slots, got %+v", days)
	}
	slot := days[0].Slots[0]
	if len(slot.Sessions) != 2 {
		t.Fatalf("expected the identical pair to share one slot, got %d sessions", len(slot.Sessions))
	}
	if slot.Sessions[0].ID != 1 || slot.Sessions[1].ID != 2 {
		t.Fatal("sessions within a slot lost their input order")
	}
}

func TestBuildPreservesEverySession(t *testing.T) {
	sessions := []model.Session{
		{ID: 1, StartTime: at(1, 9), EndTime: at(1, 10)},
		{ID: 2, StartTime: at(2, 9), EndTime: at(2, 10)},
		{ID: 3, StartTime: at(1, 9), EndTime: at(1, 10)},
		{ID: 4, StartTime: at(2, 14), EndTime: at(2, 15)},
	}
	days := Build(sessions, time.UTC)

	seen := map[int64]int{}
	for _, d := range days {
		for _, slot := range d.Slots {
			for _, s := range slot.Sessions {
				seen[s.ID]++
			}
		}
	}
	if len(seen) != len(sessions) {
		t.Fatalf("expected %d distinct sessions, got %d", len(sessions), len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("session %d appeared %d times", id, n)
		}
	}
}

func TestBuildDaysAscending(t *testing.T) {
	sessions := []model.Session{
		{ID: 1, StartTime: at(3, 9), EndTime: at(3, 10)},
		{ID: 2, StartTime: at(1, 9), EndTime: at(1, 10)},
		{ID: 3, StartTime: at(2, 9), EndTime: at(2, 10)},
	}
	days := Build(sessions, time.UTC)
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	for i := 1; i < len(days); i++ {
		if !days[i-1].Date.Before(days[i].Date) {
			t.Fatalf("days not ascending: %v before %v", days[i-1].Date, days[i].Date)
		}
	}
}

func TestBuildMultiDaySessionBucketsByStart(t *testing.T) {
	midnightSpan := model.Session{
		ID:        1,
		StartTime: time.Date(2026, time.September, 1, 22, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, time.September, 2, 2, 0, 0, 0, time.UTC),
	}
	days := Build([]model.Session{midnightSpan}, time.UTC)
	if len(days) != 1 {
		t.Fatalf("a midnight-spanning session must open only its start day, got %d days", len(days))
	}
	want := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	if !days[0].Date.Equal(want) {
		t.Fatalf("day = %v, want %v", days[0].Date, want)
	}
}

func TestBuildUsesConfiguredZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:00 UTC on the 1st is already the 2nd in Tokyo.
	s := model.Session{
		ID:        1,
		StartTime: time.Date(2026, time.September, 1, 23, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, time.September, 1, 23, 30, 0, 0, time.UTC),
	}
	days := Build([]model.Session{s}, tokyo)
	want := time.Date(2026, time.September, 2, 0, 0, 0, 0, tokyo)
	if !days[0].Date.Equal(want) {
		t.Fatalf("day = %v, want %v", days[0].Date, want)
	}
}

func TestReminderDelaySeconds(t *testing.T) {
	now := time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		start time.Time
		want  int
	}{
		{name: "due exactly now", start: now.Add(24 * time.Hour), want: 0},
		{name: "two days out", start: now.Add(48 * time.Hour), want: 24 * 60 * 60},
		{name: "sixty days out", start: now.Add(60*24*time.Hour + 24*time.Hour), want: 60 * 24 * 60 * 60},
		{name: "already inside the lead window", start: now.Add(time.Hour), want: -23 * 60 * 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReminderDelaySeconds(tt.start, now); got != tt.want {
				t.Fatalf("ReminderDelaySeconds = %d, want %d", got, tt.want)
			}
		})
	}
}
