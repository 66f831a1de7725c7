package ingest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/generator"
)

var errBusDown = errors.New("bus down")

type fakeBus struct {
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func (f *fakeBus) Publish(topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

func testCallLog() *generator.CallLog {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	answer := date.Add(3 * time.Second)
	end := date.Add(63 * time.Second)
	return &generator.CallLog{
		ID:          99,
		TenantUUID:  "tenant-1",
		Date:        date,
		DateAnswer:  &answer,
		DateEnd:     &end,
		SourceExten: "101",
		SourceName:  "Alice",
		Direction:   generator.DirectionInternal,
		Participants: []*generator.Participant{
			{UserUUID: "user-1", Role: generator.RoleSource, Tags: []string{"sales", "vip"}, Answered: true},
			{UserUUID: "user-2", Role: generator.RoleDestination, Tags: []string{"vip", "support"}, Answered: true},
		},
	}
}

func TestPublishCallLogCreated(t *testing.T) {
	bus := &fakeBus{}
	pub := NewEventPublisher(bus, "origin-uuid", zerolog.Nop())

	pub.PublishCallLogCreated(testCallLog())

	if len(bus.published) != 3 {
		t.Fatalf("expected 3 published events (1 aggregate + 2 per-user), got %d", len(bus.published))
	}

	agg := bus.published[0]
	if agg.topic != "call_log.created" {
		t.Errorf("aggregate topic = %q, want call_log.created", agg.topic)
	}
	var aggEvent map[string]any
	if err := json.Unmarshal(agg.payload, &aggEvent); err != nil {
		t.Fatalf("unmarshal aggregate: %v", err)
	}
	if aggEvent["name"] != "call_log_created" {
		t.Errorf("aggregate name = %v", aggEvent["name"])
	}
	if aggEvent["origin_uuid"] != "origin-uuid" {
		t.Errorf("origin_uuid = %v", aggEvent["origin_uuid"])
	}
	if _, ok := aggEvent["required_acl"]; ok {
		t.Error("aggregate event must not carry required_acl")
	}
	aggData := aggEvent["data"].(map[string]any)
	if _, ok := aggData["tags"]; !ok {
		t.Error("aggregate payload must carry the tags key")
	}
	tags := aggData["tags"].([]any)
	if len(tags) != 3 {
		t.Errorf("merged tags = %v, want 3 distinct", tags)
	}
	if aggData["duration"].(float64) != 60 {
		t.Errorf("duration = %v, want 60", aggData["duration"])
	}

	user1 := bus.published[1]
	if user1.topic != "call_log.user.user-1.created" {
		t.Errorf("per-user topic = %q", user1.topic)
	}
	var userEvent map[string]any
	if err := json.Unmarshal(user1.payload, &userEvent); err != nil {
		t.Fatalf("unmarshal user event: %v", err)
	}
	if userEvent["name"] != "call_log_user_created" {
		t.Errorf("user event name = %v", userEvent["name"])
	}
	if userEvent["required_acl"] != "events.call_log.user.user-1.created" {
		t.Errorf("required_acl = %v", userEvent["required_acl"])
	}
	userData := userEvent["data"].(map[string]any)
	if _, ok := userData["tags"]; ok {
		t.Error("per-user payload must not carry tags")
	}
	if userData["user_uuid"] != "user-1" {
		t.Errorf("user_uuid = %v", userData["user_uuid"])
	}

	if bus.published[2].topic != "call_log.user.user-2.created" {
		t.Errorf("second per-user topic = %q", bus.published[2].topic)
	}
}

func TestPublishCallLogCreatedEmptyTags(t *testing.T) {
	bus := &fakeBus{}
	pub := NewEventPublisher(bus, "origin-uuid", zerolog.Nop())

	cl := testCallLog()
	cl.Participants = nil
	pub.PublishCallLogCreated(cl)

	var aggEvent map[string]any
	if err := json.Unmarshal(bus.published[0].payload, &aggEvent); err != nil {
		t.Fatalf("unmarshal aggregate: %v", err)
	}
	tags, ok := aggEvent["data"].(map[string]any)["tags"]
	if !ok {
		t.Fatal("tags key must be present even when empty")
	}
	if len(tags.([]any)) != 0 {
		t.Errorf("tags = %v, want empty", tags)
	}
}

func TestPublishCallLogCreatedBusFailureIsSwallowed(t *testing.T) {
	bus := &fakeBus{err: errBusDown}
	pub := NewEventPublisher(bus, "origin-uuid", zerolog.Nop())

	// Must not panic or block; failures are logged only.
	pub.PublishCallLogCreated(testCallLog())

	if len(bus.published) != 0 {
		t.Errorf("expected no successful publishes, got %d", len(bus.published))
	}
}
