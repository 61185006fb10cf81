package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"eventdesk/internal/model"
)

func TestAttachOutcome(t *testing.T) {
	tests := []struct {
		name            string
		created         bool
		alreadyAttached bool
		want            AttachOutcome
	}{
		{name: "new pair creates a row", created: true, want: AttachCreated},
		{name: "pair from another event is shared", want: AttachShared},
		{name: "pair this event already offers is a noop", alreadyAttached: true, want: AttachNoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attachOutcome(tt.created, tt.alreadyAttached); got != tt.want {
				t.Fatalf("attachOutcome(%t, %t) = %v, want %v", tt.created, tt.alreadyAttached, got, tt.want)
			}
		})
	}
}

func TestShouldDeleteType(t *testing.T) {
	tests := []struct {
		name     string
		refCount int
		inUse    bool
		wantDel  bool
		wantErr  error
	}{
		{name: "row shared with another event survives", refCount: 2, wantDel: false},
		{name: "row shared with another event survives even when in use", refCount: 2, inUse: true, wantDel: false},
		{name: "sole referent takes the row with it", refCount: 1, wantDel: true},
		{name: "sole referent blocked by registrations", refCount: 1, inUse: true, wantErr: ErrTypeInUse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			del, err := shouldDeleteType(tt.refCount, tt.inUse)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if del != tt.wantDel {
				t.Fatalf("delete = %t, want %t", del, tt.wantDel)
			}
		})
	}
}

func TestWithdrawalRecordTracesRegistration(t *testing.T) {
	reg := &model.Registration{
		ID:        42,
		PublicRef: "ref-42",
		EventID:   7,
		Email:     "ada@example.org",
	}

	rec := withdrawalRecord(reg, model.ReasonOther, "moved abroad")
	if rec.PublicRef != "ref-42" || rec.EventID != 7 {
		t.Fatalf("record = %+v, must carry the registration's ref and event", rec)
	}
	if rec.Reason != model.ReasonOther || rec.OtherReason != "moved abroad" {
		t.Fatalf("record = %+v, must carry the stated reason", rec)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pq.Error{Code: "23505"}
	if !isUniqueViolation(unique) {
		t.Fatal("23505 must be recognised as a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("insert: %w", unique)) {
		t.Fatal("wrapped 23505 must be recognised")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Fatal("foreign-key violation must not count")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Fatal("plain errors must not count")
	}
}
