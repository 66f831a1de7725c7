package generator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestParticipantsProcessorMemoizesLookups(t *testing.T) {
	dir := &fakeDirectory{
		byChannel: map[string]*DirectoryParticipant{
			"SIP/a-01": {UUID: "user-a"},
		},
		byUUID: map[string]*DirectoryParticipant{
			"user-b": {UUID: "user-b"},
		},
	}
	pp := newParticipantsProcessor(dir, zerolog.Nop())
	ctx := context.Background()

	pp.findByChannel(ctx, "SIP/a-01")
	pp.findByChannel(ctx, "SIP/a-01")
	if dir.channelCalls != 1 {
		t.Errorf("channel lookups = %d, want 1 (second call cached)", dir.channelCalls)
	}

	pp.findByUUID(ctx, "user-b")
	pp.findByUUID(ctx, "user-b")
	if dir.uuidCalls != 1 {
		t.Errorf("uuid lookups = %d, want 1 (second call cached)", dir.uuidCalls)
	}
}

func TestParticipantsProcessorMemoizesNotFoundAndFailures(t *testing.T) {
	dir := &fakeDirectory{}
	pp := newParticipantsProcessor(dir, zerolog.Nop())
	ctx := context.Background()

	if dp := pp.findByChannel(ctx, "SIP/unknown-01"); dp != nil {
		t.Fatalf("expected nil for unknown channel, got %+v", dp)
	}
	pp.findByChannel(ctx, "SIP/unknown-01")
	if dir.channelCalls != 1 {
		t.Errorf("channel lookups = %d, want 1 (not-found cached)", dir.channelCalls)
	}

	failing := &fakeDirectory{err: ErrDirectoryUnavailable}
	pp = newParticipantsProcessor(failing, zerolog.Nop())
	if dp := pp.findByUUID(ctx, "user-x"); dp != nil {
		t.Fatalf("expected nil on directory failure, got %+v", dp)
	}
	pp.findByUUID(ctx, "user-x")
	if failing.uuidCalls != 1 {
		t.Errorf("uuid lookups = %d, want 1 (failure cached)", failing.uuidCalls)
	}
}

func TestParticipantsProcessorReconcilesInfoWithChannel(t *testing.T) {
	// The same user shows up both via a channel lookup and via the
	// interpretor's participants info. Only one participant must result.
	dir := &fakeDirectory{
		byChannel: map[string]*DirectoryParticipant{
			"SIP/a-01": {UUID: "user-a", LineID: 11, Tags: []string{"vip"}},
		},
	}
	pp := newParticipantsProcessor(dir, zerolog.Nop())

	raw := NewRawCallLog()
	answered := true
	raw.RawParticipants["SIP/a-01"] = &RawParticipant{Role: RoleDestination, Answered: &answered}
	raw.ParticipantsInfo = []ParticipantInfoEntry{{UserUUID: "user-a", Role: RoleDestination}}

	pp.Process(context.Background(), raw)

	if len(raw.Participants) != 1 {
		t.Fatalf("expected 1 reconciled participant, got %d", len(raw.Participants))
	}
	p := raw.Participants[0]
	if p.UserUUID != "user-a" || p.LineID != 11 {
		t.Errorf("participant = %+v", p)
	}
	if !p.Answered {
		t.Error("channel answered state must win")
	}
	if dir.uuidCalls != 0 {
		t.Errorf("uuid lookups = %d, want 0 (resolved via channel)", dir.uuidCalls)
	}
}

func TestParticipantsProcessorUnresolvedInfoNotAppended(t *testing.T) {
	dir := &fakeDirectory{}
	pp := newParticipantsProcessor(dir, zerolog.Nop())

	raw := NewRawCallLog()
	raw.ParticipantsInfo = []ParticipantInfoEntry{{UserUUID: "ghost-user", Role: RoleDestination}}

	pp.Process(context.Background(), raw)

	if len(raw.Participants) != 0 {
		t.Errorf("unknown user must not be appended, got %d participants", len(raw.Participants))
	}
}
