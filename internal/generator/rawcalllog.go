package generator

import (
	"time"

	"github.com/rs/zerolog"
)

// Role of a participant within a call.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// Direction of a call relative to the tenant.
type Direction string

const (
	DirectionInternal Direction = "internal"
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Extension is an exten/context pair from the dialplan.
type Extension struct {
	Exten   string
	Context string
}

// RawParticipant is the attribute bag the interpretor accumulates for one
// channel. The directory lookup later merges tenant, line and extension
// data into it.
type RawParticipant struct {
	Role          Role
	Answered      *bool
	TenantUUID    string
	MainExtension *Extension
	LineID        int
	Tags          []string
}

// ParticipantInfoEntry is a participant the interpretor identified without
// a channel, e.g. a user found in a forwarding CEL. Reconciliation with
// channel-keyed participants is the ParticipantsProcessor's job.
type ParticipantInfoEntry struct {
	UserUUID string
	Role     Role
	Answered bool
}

// Participant is a finalized call-log participant.
type Participant struct {
	UserUUID string
	LineID   int
	Role     Role
	Tags     []string
	Answered bool
}

// Recording is a media recording observed during the call. Entries whose
// start or end marker was never seen keep a nil timestamp and are pruned
// before the call log is finalized.
type Recording struct {
	StartTime *time.Time
	EndTime   *time.Time
	Path      string
}

// RawCallLog is the mutable accumulator for one linked-id group. It is
// constructed fresh per group, mutated by the interpretor and the
// finalizer passes, and converted exactly once with ToCallLog.
type RawCallLog struct {
	CELIDs []int64

	Date       time.Time
	DateAnswer *time.Time
	DateEnd    *time.Time

	SourceName     string
	SourceExten    string
	SourceLine     string
	SourceUserUUID string

	DestinationName     string
	DestinationExten    string
	DestinationLine     string
	DestinationUserUUID string

	RequestedName    string
	RequestedExten   string
	RequestedContext string

	SourceInternalExten        string
	SourceInternalContext      string
	DestinationInternalExten   string
	DestinationInternalContext string
	RequestedInternalExten     string
	RequestedInternalContext   string

	Direction  Direction
	TenantUUID string

	RawParticipants  map[string]*RawParticipant
	ParticipantsInfo []ParticipantInfoEntry
	Participants     []*Participant
	Recordings       []Recording
}

// NewRawCallLog returns an empty accumulator.
func NewRawCallLog() *RawCallLog {
	return &RawCallLog{
		Direction:       DirectionInternal,
		RawParticipants: make(map[string]*RawParticipant),
	}
}

// SetTenantUUID fixes the call's tenant. The first call wins silently;
// a later call with a different tenant is a contradiction in the input,
// logged at warn with last-writer-wins.
func (r *RawCallLog) SetTenantUUID(tenantUUID string, log zerolog.Logger) {
	if tenantUUID == "" {
		return
	}
	if r.TenantUUID != "" && r.TenantUUID != tenantUUID {
		log.Warn().
			Str("current", r.TenantUUID).
			Str("new", tenantUUID).
			Ints64("cel_ids", r.CELIDs).
			Msg("contradictory tenant uuids on one call, keeping the last")
	}
	r.TenantUUID = tenantUUID
}

// CallLog is the durable record emitted for one completed call.
type CallLog struct {
	ID         int64
	TenantUUID string

	Date       time.Time
	DateAnswer *time.Time
	DateEnd    *time.Time

	SourceName     string
	SourceExten    string
	SourceLine     string
	SourceUserUUID string

	DestinationName     string
	DestinationExten    string
	DestinationLine     string
	DestinationUserUUID string

	RequestedName    string
	RequestedExten   string
	RequestedContext string

	SourceInternalExten        string
	SourceInternalContext      string
	DestinationInternalExten   string
	DestinationInternalContext string
	RequestedInternalExten     string
	RequestedInternalContext   string

	Direction Direction

	Participants []*Participant
	Recordings   []Recording
	CELIDs       []int64
}

// Duration is the answered duration, zero when the call was never answered.
func (c *CallLog) Duration() time.Duration {
	if c.DateAnswer == nil || c.DateEnd == nil {
		return 0
	}
	d := c.DateEnd.Sub(*c.DateAnswer)
	if d < 0 {
		return 0
	}
	return d
}

// Answered reports whether the call reached a bridged answer.
func (c *CallLog) Answered() bool {
	return c.DateAnswer != nil
}

// ToCallLog validates the accumulator and converts it into a durable
// record. It fails when the date is unset, when both source exten and
// source name are empty, or when no tenant could be resolved.
func (r *RawCallLog) ToCallLog() (*CallLog, error) {
	if r.Date.IsZero() {
		return nil, &InvalidCallLogError{Reason: "date is missing"}
	}
	if r.SourceExten == "" && r.SourceName == "" {
		return nil, &InvalidCallLogError{Reason: "both source exten and source name are empty"}
	}
	if r.TenantUUID == "" {
		return nil, &InvalidCallLogError{Reason: "tenant uuid is missing"}
	}

	return &CallLog{
		TenantUUID: r.TenantUUID,

		Date:       r.Date,
		DateAnswer: r.DateAnswer,
		DateEnd:    r.DateEnd,

		SourceName:     r.SourceName,
		SourceExten:    r.SourceExten,
		SourceLine:     r.SourceLine,
		SourceUserUUID: r.SourceUserUUID,

		DestinationName:     r.DestinationName,
		DestinationExten:    r.DestinationExten,
		DestinationLine:     r.DestinationLine,
		DestinationUserUUID: r.DestinationUserUUID,

		RequestedName:    r.RequestedName,
		RequestedExten:   r.RequestedExten,
		RequestedContext: r.RequestedContext,

		SourceInternalExten:        r.SourceInternalExten,
		SourceInternalContext:      r.SourceInternalContext,
		DestinationInternalExten:   r.DestinationInternalExten,
		DestinationInternalContext: r.DestinationInternalContext,
		RequestedInternalExten:     r.RequestedInternalExten,
		RequestedInternalContext:   r.RequestedInternalContext,

		Direction: r.Direction,

		Participants: r.Participants,
		Recordings:   r.Recordings,
		CELIDs:       r.CELIDs,
	}, nil
}
