package generator

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/metrics"
)

// ParticipantsProcessor reconciles the channel-keyed RawParticipants and
// the user-keyed ParticipantsInfo against the directory, producing the
// final raw.Participants list.
//
// One processor is created per FromCEL invocation: both directory lookups
// are memoized for the lifetime of that invocation only, so directory
// data never leaks across calls.
type ParticipantsProcessor struct {
	directory Directory
	log       zerolog.Logger

	byChannel map[string]*DirectoryParticipant // nil value = looked up, not found
	byUUID    map[string]*DirectoryParticipant
}

func newParticipantsProcessor(directory Directory, log zerolog.Logger) *ParticipantsProcessor {
	return &ParticipantsProcessor{
		directory: directory,
		log:       log,
		byChannel: make(map[string]*DirectoryParticipant),
		byUUID:    make(map[string]*DirectoryParticipant),
	}
}

// pendingParticipant tracks whether an interpretor-seeded participant has
// already been appended to raw.Participants.
type pendingParticipant struct {
	p        *Participant
	appended bool
}

// Process enriches raw against the directory. Directory failures degrade
// the affected participant to "not found" and never fail the call.
func (pp *ParticipantsProcessor) Process(ctx context.Context, raw *RawCallLog) {
	pending := make(map[string]*pendingParticipant)
	for _, p := range raw.Participants {
		pending[p.UserUUID] = &pendingParticipant{p: p, appended: true}
	}
	for _, info := range raw.ParticipantsInfo {
		if _, ok := pending[info.UserUUID]; ok {
			continue
		}
		pending[info.UserUUID] = &pendingParticipant{
			p: &Participant{UserUUID: info.UserUUID, Role: info.Role, Answered: info.Answered},
		}
	}

	for _, channelName := range sortedChannels(raw.RawParticipants) {
		attrs := raw.RawParticipants[channelName]
		dp := pp.findByChannel(ctx, channelName)
		if dp == nil {
			pp.log.Info().Str("channel", channelName).Msg("no participant found for channel")
			continue
		}

		attrs.TenantUUID = dp.TenantUUID
		attrs.MainExtension = dp.MainExtension
		attrs.LineID = dp.LineID
		attrs.Tags = dp.Tags

		pd, ok := pending[dp.UUID]
		if ok {
			delete(pending, dp.UUID)
		} else {
			pd = &pendingParticipant{p: &Participant{UserUUID: dp.UUID}}
		}
		if !pd.appended {
			raw.Participants = append(raw.Participants, pd.p)
			pd.appended = true
		}

		pd.p.LineID = dp.LineID
		pd.p.Tags = dp.Tags
		if attrs.Role != "" {
			pd.p.Role = attrs.Role
		}
		if attrs.Answered != nil {
			pd.p.Answered = *attrs.Answered
		}
	}

	// Participants identified by interpretation without a matching channel,
	// e.g. a user found in a forwarding CEL.
	for _, uuid := range sortedKeys(pending) {
		pd := pending[uuid]
		dp := pp.findByUUID(ctx, uuid)
		if dp == nil {
			pp.log.Info().Str("user_uuid", uuid).Msg("no participant found for user uuid")
			continue
		}
		pd.p.LineID = dp.LineID
		pd.p.Tags = dp.Tags
		switch uuid {
		case raw.SourceUserUUID:
			pd.p.Role = RoleSource
		case raw.DestinationUserUUID:
			pd.p.Role = RoleDestination
		}
		if !pd.appended {
			raw.Participants = append(raw.Participants, pd.p)
			pd.appended = true
		}
	}
}

func (pp *ParticipantsProcessor) findByChannel(ctx context.Context, channelName string) *DirectoryParticipant {
	if dp, ok := pp.byChannel[channelName]; ok {
		metrics.DirectoryCacheHitsTotal.Inc()
		return dp
	}
	metrics.DirectoryLookupsTotal.WithLabelValues("channel").Inc()
	dp, err := pp.directory.FindParticipantByChannel(ctx, channelName)
	if err != nil {
		metrics.DirectoryFailuresTotal.Inc()
		pp.log.Warn().Err(err).Str("channel", channelName).Msg("directory lookup failed, treating as not found")
		dp = nil
	}
	pp.byChannel[channelName] = dp
	return dp
}

func (pp *ParticipantsProcessor) findByUUID(ctx context.Context, userUUID string) *DirectoryParticipant {
	if dp, ok := pp.byUUID[userUUID]; ok {
		metrics.DirectoryCacheHitsTotal.Inc()
		return dp
	}
	metrics.DirectoryLookupsTotal.WithLabelValues("user").Inc()
	dp, err := pp.directory.FindParticipantByUUID(ctx, userUUID)
	if err != nil {
		metrics.DirectoryFailuresTotal.Inc()
		pp.log.Warn().Err(err).Str("user_uuid", userUUID).Msg("directory lookup failed, treating as not found")
		dp = nil
	}
	pp.byUUID[userUUID] = dp
	return dp
}

func sortedChannels(m map[string]*RawParticipant) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
