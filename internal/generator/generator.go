package generator

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/cel"
	"github.com/snarg/cel-logd/internal/metrics"
)

// CallLogsCreation is the outcome of one FromCEL invocation: the freshly
// generated call logs and the ids of prior call logs this regeneration
// supersedes.
type CallLogsCreation struct {
	NewCallLogs        []*CallLog
	CallLogIDsToDelete []int64
}

// Generator turns CEL groups into call logs. It is stateless across
// invocations; the only process-wide value is the service tenant uuid,
// set once at construction.
type Generator struct {
	directory         Directory
	interpretors      []Interpretor
	serviceTenantUUID string
	log               zerolog.Logger
}

func New(directory Directory, interpretors []Interpretor, serviceTenantUUID string, log zerolog.Logger) *Generator {
	return &Generator{
		directory:         directory,
		interpretors:      interpretors,
		serviceTenantUUID: serviceTenantUUID,
		log:               log.With().Str("component", "generator").Logger(),
	}
}

// FromCEL groups the input by linked-id, interprets and enriches each
// group, and returns the resulting call logs plus the superseded call-log
// ids. A group failing validation is skipped; a group no interpretor
// accepts aborts the batch with ErrNoInterpretorMatched.
func (g *Generator) FromCEL(ctx context.Context, cels []cel.CEL) (CallLogsCreation, error) {
	toDelete := listCallLogIDs(cels)
	newCallLogs, err := g.callLogsFromCEL(ctx, cels)
	if err != nil {
		return CallLogsCreation{}, err
	}
	return CallLogsCreation{
		NewCallLogs:        newCallLogs,
		CallLogIDsToDelete: toDelete,
	}, nil
}

func (g *Generator) callLogsFromCEL(ctx context.Context, cels []cel.CEL) ([]*CallLog, error) {
	var result []*CallLog

	// One processor for the whole invocation: its lookup memos span all
	// groups, so a channel or user shared by several calls in the batch
	// is resolved against the directory once.
	processor := newParticipantsProcessor(g.directory, g.log)

	for _, group := range groupByLinkedID(cels) {
		raw := NewRawCallLog()
		raw.CELIDs = celIDs(group)

		interpretor, err := g.chooseInterpretor(group)
		if err != nil {
			return nil, err
		}
		g.log.Debug().
			Str("interpretor", interpretor.Name()).
			Str("linked_id", group[0].LinkedID).
			Int("cels", len(group)).
			Msg("interpreting cel group")
		raw = interpretor.Interpret(group, raw)

		g.removeDuplicateParticipants(raw)
		processor.Process(ctx, raw)
		g.ensureTenantUUID(ctx, raw)
		g.fillExtensionsFromParticipants(raw)
		g.removeIncompleteRecordings(raw)

		callLog, err := raw.ToCallLog()
		if err != nil {
			if IsInvalidCallLog(err) {
				metrics.CallLogsInvalidTotal.Inc()
				g.log.Debug().Err(err).Str("linked_id", group[0].LinkedID).Msg("invalid call log detected, skipping")
				continue
			}
			return nil, err
		}
		metrics.CallLogsCreatedTotal.Inc()
		result = append(result, callLog)
	}

	return result, nil
}

func (g *Generator) chooseInterpretor(group []cel.CEL) (Interpretor, error) {
	for _, interpretor := range g.interpretors {
		if interpretor.CanInterpret(group) {
			return interpretor, nil
		}
	}
	return nil, fmt.Errorf("%w: linked_id %q (%d cels)", ErrNoInterpretorMatched, group[0].LinkedID, len(group))
}

// removeDuplicateParticipants keeps only the lexicographically last
// channel of each protocol/interface equivalence class. The engine
// re-forks a channel on redirect, producing parallel CEL streams for the
// same line; only the most recent instance carries the final state.
func (g *Generator) removeDuplicateParticipants(raw *RawCallLog) {
	channelNames := sortedChannels(raw.RawParticipants)
	for i, name := range channelNames {
		if i+1 < len(channelNames) && cel.ProtocolInterface(name) == cel.ProtocolInterface(channelNames[i+1]) {
			delete(raw.RawParticipants, name)
		}
	}
}

// ensureTenantUUID fixes the call's tenant from its participants, falling
// back to the requested context's tenant, then to the service tenant.
func (g *Generator) ensureTenantUUID(ctx context.Context, raw *RawCallLog) {
	tenantUUIDs := make(map[string]struct{})
	for _, rp := range raw.RawParticipants {
		if rp.TenantUUID != "" {
			tenantUUIDs[rp.TenantUUID] = struct{}{}
		}
	}
	for _, tenantUUID := range sortedKeys(tenantUUIDs) {
		raw.SetTenantUUID(tenantUUID, g.log)
	}
	if raw.TenantUUID != "" {
		return
	}

	if raw.RequestedContext != "" {
		contexts, err := g.directory.ListContexts(ctx, raw.RequestedContext)
		if err != nil {
			g.log.Warn().Err(err).Str("context", raw.RequestedContext).Msg("context lookup failed")
		} else if len(contexts) > 0 {
			raw.SetTenantUUID(contexts[0].TenantUUID, g.log)
			return
		}
	}

	g.log.Debug().
		Ints64("cel_ids", raw.CELIDs).
		Str("service_tenant", g.serviceTenantUUID).
		Msg("call log has no tenant, falling back to service tenant")
	raw.SetTenantUUID(g.serviceTenantUUID, g.log)
}

// fillExtensionsFromParticipants back-fills the internal exten/context
// fields from the participants' main extensions. The interpretor's values
// win: only unset fields are filled, first writer wins.
func (g *Generator) fillExtensionsFromParticipants(raw *RawCallLog) {
	for _, name := range sortedChannels(raw.RawParticipants) {
		rp := raw.RawParticipants[name]
		if rp.Role != RoleSource || rp.MainExtension == nil {
			continue
		}
		if raw.SourceInternalExten == "" || raw.SourceInternalContext == "" {
			raw.SourceInternalExten = rp.MainExtension.Exten
			raw.SourceInternalContext = rp.MainExtension.Context
		}
	}

	for _, name := range sortedChannels(raw.RawParticipants) {
		rp := raw.RawParticipants[name]
		if rp.Role != RoleDestination || rp.MainExtension == nil {
			continue
		}
		if raw.DestinationInternalExten == "" || raw.DestinationInternalContext == "" {
			raw.DestinationInternalExten = rp.MainExtension.Exten
			raw.DestinationInternalContext = rp.MainExtension.Context
		}
		if raw.RequestedInternalExten == "" || raw.RequestedInternalContext == "" {
			raw.RequestedInternalExten = rp.MainExtension.Exten
			raw.RequestedInternalContext = rp.MainExtension.Context
		}
	}
}

// removeIncompleteRecordings drops recordings missing either endpoint.
func (g *Generator) removeIncompleteRecordings(raw *RawCallLog) {
	kept := raw.Recordings[:0]
	for _, rec := range raw.Recordings {
		if rec.StartTime == nil || rec.EndTime == nil {
			g.log.Debug().Str("path", rec.Path).Msg("incomplete recording information, dropping")
			continue
		}
		kept = append(kept, rec)
	}
	raw.Recordings = kept
}

// listCallLogIDs returns the distinct non-null call_log_id values of the
// input, i.e. the call logs this regeneration supersedes.
func listCallLogIDs(cels []cel.CEL) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, c := range cels {
		if c.CallLogID == nil {
			continue
		}
		if _, ok := seen[*c.CallLogID]; ok {
			continue
		}
		seen[*c.CallLogID] = struct{}{}
		ids = append(ids, *c.CallLogID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// groupByLinkedID stable-sorts by linked-id and splits into consecutive
// groups, preserving the store's event order within each group.
func groupByLinkedID(cels []cel.CEL) [][]cel.CEL {
	if len(cels) == 0 {
		return nil
	}
	sorted := make([]cel.CEL, len(cels))
	copy(sorted, cels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LinkedID < sorted[j].LinkedID })

	var groups [][]cel.CEL
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].LinkedID != sorted[start].LinkedID {
			groups = append(groups, sorted[start:i])
			start = i
		}
	}
	return groups
}

func celIDs(cels []cel.CEL) []int64 {
	ids := make([]int64, len(cels))
	for i, c := range cels {
		ids[i] = c.ID
	}
	return ids
}
