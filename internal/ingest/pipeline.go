package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/cel"
	"github.com/snarg/cel-logd/internal/generator"
	"github.com/snarg/cel-logd/internal/metrics"
)

// Store is the persistence surface the pipeline needs. *database.DB
// satisfies it; tests use a fake.
type Store interface {
	FetchCELsByLinkedID(ctx context.Context, linkedID string) ([]cel.CEL, error)
	StampCELsCallLogID(ctx context.Context, celIDs []int64, callLogID int64) error
	InsertCallLog(ctx context.Context, cl *generator.CallLog) (int64, error)
	DeleteCallLogsByIDs(ctx context.Context, ids []int64) error
}

// Pipeline processes incoming bus messages. On LINKEDID_END it fetches
// the terminated call's CELs, regenerates the call log, persists it, and
// fans out the created events.
type Pipeline struct {
	store     Store
	generator *generator.Generator
	publisher *EventPublisher
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	msgCount atomic.Int64
}

type PipelineOptions struct {
	Store     Store
	Generator *generator.Generator
	Publisher *EventPublisher
	Log       zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:     opts.Store,
		generator: opts.Generator,
		publisher: opts.Publisher,
		log:       opts.Log.With().Str("component", "ingest").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins periodic stats logging.
func (p *Pipeline) Start() {
	go p.statsLoop()
	p.log.Info().Msg("ingest pipeline started")
}

// Stop cancels in-flight processing.
func (p *Pipeline) Stop() {
	p.log.Info().Int64("total_messages", p.msgCount.Load()).Msg("ingest pipeline stopping")
	p.cancel()
}

// HandleMessage is the MQTT message callback.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	p.msgCount.Add(1)
	metrics.BusMessagesTotal.Inc()

	route := ParseTopic(topic)
	if route == nil {
		p.log.Debug().Str("topic", topic).Msg("ignoring message on unrouted topic")
		return
	}

	switch route.Handler {
	case "cel":
		if err := p.handleCEL(payload); err != nil {
			p.log.Error().Err(err).Str("topic", topic).Msg("cel handler failed")
		}
	}
}

func (p *Pipeline) handleCEL(payload []byte) error {
	var msg CELMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal cel message: %w", err)
	}
	if msg.Data.EventName != string(cel.LinkedIDEnd) {
		return nil
	}
	if msg.Data.LinkedID == "" {
		return fmt.Errorf("LINKEDID_END without LinkedID")
	}

	metrics.LinkedIDEndTotal.Inc()
	p.log.Debug().Str("linked_id", msg.Data.LinkedID).Msg("received LINKEDID_END")

	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()
	return p.ProcessLinkedID(ctx, msg.Data.LinkedID)
}

func (p *Pipeline) statsLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			total := p.msgCount.Load()
			p.log.Info().
				Int64("total_messages", total).
				Int64("messages_per_min", total-last).
				Msg("ingest stats")
			last = total
		}
	}
}

// ProcessLinkedID regenerates the call log for one terminated call.
func (p *Pipeline) ProcessLinkedID(ctx context.Context, linkedID string) error {
	cels, err := p.store.FetchCELsByLinkedID(ctx, linkedID)
	if err != nil {
		return fmt.Errorf("fetch cels: %w", err)
	}
	if len(cels) == 0 {
		p.log.Warn().Str("linked_id", linkedID).Msg("no cels found for linked id")
		return nil
	}

	creation, err := p.generator.FromCEL(ctx, cels)
	if err != nil {
		return fmt.Errorf("generate call logs: %w", err)
	}

	if err := p.store.DeleteCallLogsByIDs(ctx, creation.CallLogIDsToDelete); err != nil {
		return fmt.Errorf("delete superseded call logs: %w", err)
	}

	for _, cl := range creation.NewCallLogs {
		id, err := p.store.InsertCallLog(ctx, cl)
		if err != nil {
			return fmt.Errorf("insert call log: %w", err)
		}
		cl.ID = id

		if err := p.store.StampCELsCallLogID(ctx, cl.CELIDs, id); err != nil {
			p.log.Warn().Err(err).Int64("call_log_id", id).Msg("failed to stamp cels")
		}

		if p.publisher != nil {
			p.publisher.PublishCallLogCreated(cl)
		}

		p.log.Info().
			Int64("call_log_id", id).
			Str("linked_id", linkedID).
			Str("direction", string(cl.Direction)).
			Int("participants", len(cl.Participants)).
			Msg("call log created")
	}
	return nil
}
