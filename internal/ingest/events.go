package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/generator"
	"github.com/snarg/cel-logd/internal/metrics"
)

// EventPublisher fans out call-log events on the bus after persistence:
// one aggregate call_log_created, plus one call_log_user_created per
// participant on that user's own topic.
type EventPublisher struct {
	bus        busPublisher
	originUUID string
	log        zerolog.Logger
}

type busPublisher interface {
	Publish(topic string, payload []byte) error
}

func NewEventPublisher(bus busPublisher, originUUID string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:        bus,
		originUUID: originUUID,
		log:        log.With().Str("component", "events").Logger(),
	}
}

// busEvent is the bus envelope shared by all published events.
type busEvent struct {
	Name        string `json:"name"`
	OriginUUID  string `json:"origin_uuid"`
	RequiredACL string `json:"required_acl,omitempty"`
	Data        any    `json:"data"`
}

// callLogData is the aggregate event payload. It carries the merged
// participant tags; the per-user payload deliberately omits them.
type callLogData struct {
	ID               int64    `json:"id"`
	TenantUUID       string   `json:"tenant_uuid"`
	Date             string   `json:"date"`
	DateAnswer       *string  `json:"date_answer"`
	DateEnd          *string  `json:"date_end"`
	DurationSeconds  float64  `json:"duration"`
	Direction        string   `json:"direction"`
	SourceName       string   `json:"source_name"`
	SourceExten      string   `json:"source_exten"`
	DestinationName  string   `json:"destination_name"`
	DestinationExten string   `json:"destination_exten"`
	Answered         bool     `json:"answered"`
	Tags             []string `json:"tags"`
}

// callLogUserData is callLogData without the tags key. Consumers of the
// per-user topic must not see other users' tags, so the field is absent
// rather than empty.
type callLogUserData struct {
	ID               int64   `json:"id"`
	TenantUUID       string  `json:"tenant_uuid"`
	UserUUID         string  `json:"user_uuid"`
	Date             string  `json:"date"`
	DateAnswer       *string `json:"date_answer"`
	DateEnd          *string `json:"date_end"`
	DurationSeconds  float64 `json:"duration"`
	Direction        string  `json:"direction"`
	SourceName       string  `json:"source_name"`
	SourceExten      string  `json:"source_exten"`
	DestinationName  string  `json:"destination_name"`
	DestinationExten string  `json:"destination_exten"`
	Answered         bool    `json:"answered"`
}

// PublishCallLogCreated emits the aggregate event and one per-user event
// per participant. Publish failures are logged, not returned: the call
// log is already durable at this point.
func (p *EventPublisher) PublishCallLogCreated(cl *generator.CallLog) {
	data := callLogData{
		ID:               cl.ID,
		TenantUUID:       cl.TenantUUID,
		Date:             cl.Date.Format(time.RFC3339Nano),
		DateAnswer:       formatTimePtr(cl.DateAnswer),
		DateEnd:          formatTimePtr(cl.DateEnd),
		DurationSeconds:  cl.Duration().Seconds(),
		Direction:        string(cl.Direction),
		SourceName:       cl.SourceName,
		SourceExten:      cl.SourceExten,
		DestinationName:  cl.DestinationName,
		DestinationExten: cl.DestinationExten,
		Answered:         cl.Answered(),
		Tags:             mergeTags(cl.Participants),
	}
	p.publish("call_log.created", busEvent{
		Name:       "call_log_created",
		OriginUUID: p.originUUID,
		Data:       data,
	})

	for _, participant := range cl.Participants {
		userData := callLogUserData{
			ID:               cl.ID,
			TenantUUID:       cl.TenantUUID,
			UserUUID:         participant.UserUUID,
			Date:             data.Date,
			DateAnswer:       data.DateAnswer,
			DateEnd:          data.DateEnd,
			DurationSeconds:  data.DurationSeconds,
			Direction:        data.Direction,
			SourceName:       data.SourceName,
			SourceExten:      data.SourceExten,
			DestinationName:  data.DestinationName,
			DestinationExten: data.DestinationExten,
			Answered:         data.Answered,
		}
		p.publish(
			fmt.Sprintf("call_log.user.%s.created", participant.UserUUID),
			busEvent{
				Name:        "call_log_user_created",
				OriginUUID:  p.originUUID,
				RequiredACL: fmt.Sprintf("events.call_log.user.%s.created", participant.UserUUID),
				Data:        userData,
			},
		)
	}
}

func (p *EventPublisher) publish(topic string, event busEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("failed to marshal bus event")
		return
	}
	if err := p.bus.Publish(topic, payload); err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("failed to publish bus event")
		return
	}
	metrics.BusEventsPublishedTotal.WithLabelValues(event.Name).Inc()
}

// mergeTags unions participant tags, preserving first-seen order.
func mergeTags(participants []*generator.Participant) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, p := range participants {
		for _, t := range p.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
