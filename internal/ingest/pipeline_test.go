package ingest

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/cel"
	"github.com/snarg/cel-logd/internal/generator"
)

type fakeStore struct {
	cels map[string][]cel.CEL

	fetched  []string
	inserted []*generator.CallLog
	deleted  [][]int64
	stamped  map[int64][]int64

	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cels:    make(map[string][]cel.CEL),
		stamped: make(map[int64][]int64),
		nextID:  100,
	}
}

func (f *fakeStore) FetchCELsByLinkedID(_ context.Context, linkedID string) ([]cel.CEL, error) {
	f.fetched = append(f.fetched, linkedID)
	return f.cels[linkedID], nil
}

func (f *fakeStore) StampCELsCallLogID(_ context.Context, celIDs []int64, callLogID int64) error {
	f.stamped[callLogID] = celIDs
	return nil
}

func (f *fakeStore) InsertCallLog(_ context.Context, cl *generator.CallLog) (int64, error) {
	f.inserted = append(f.inserted, cl)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) DeleteCallLogsByIDs(_ context.Context, ids []int64) error {
	f.deleted = append(f.deleted, ids)
	return nil
}

type nullDirectory struct{}

func (nullDirectory) FindParticipantByChannel(context.Context, string) (*generator.DirectoryParticipant, error) {
	return nil, nil
}

func (nullDirectory) FindParticipantByUUID(context.Context, string) (*generator.DirectoryParticipant, error) {
	return nil, nil
}

func (nullDirectory) ListContexts(context.Context, string) ([]generator.DirectoryContext, error) {
	return nil, nil
}

func simpleCallCELs(linkedID string, callLogID *int64) []cel.CEL {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []cel.CEL{
		{ID: 1, EventType: cel.ChanStart, EventTime: base, ChannelName: "SIP/a-01", UniqueID: "u1", LinkedID: linkedID, CIDName: "Alice", CIDNum: "101", Exten: "102", Context: "default", CallLogID: callLogID},
		{ID: 2, EventType: cel.ChanEnd, EventTime: base.Add(10 * time.Second), ChannelName: "SIP/a-01", UniqueID: "u1", LinkedID: linkedID, CallLogID: callLogID},
		{ID: 3, EventType: cel.LinkedIDEnd, EventTime: base.Add(10 * time.Second), ChannelName: "SIP/a-01", UniqueID: "u1", LinkedID: linkedID, CallLogID: callLogID},
	}
}

func newTestPipeline(store *fakeStore, bus *fakeBus) *Pipeline {
	gen := generator.New(nullDirectory{}, generator.DefaultInterpretors(), "service-tenant", zerolog.Nop())
	var pub *EventPublisher
	if bus != nil {
		pub = NewEventPublisher(bus, "origin-uuid", zerolog.Nop())
	}
	return NewPipeline(PipelineOptions{
		Store:     store,
		Generator: gen,
		Publisher: pub,
		Log:       zerolog.Nop(),
	})
}

func TestHandleMessageLinkedIDEnd(t *testing.T) {
	store := newFakeStore()
	store.cels["1234.5"] = simpleCallCELs("1234.5", nil)
	bus := &fakeBus{}
	p := newTestPipeline(store, bus)
	defer p.Stop()

	p.HandleMessage("pbx/ami/cel", []byte(`{"data":{"EventName":"LINKEDID_END","LinkedID":"1234.5"}}`))

	if !reflect.DeepEqual(store.fetched, []string{"1234.5"}) {
		t.Fatalf("fetched = %v, want [1234.5]", store.fetched)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted = %d call logs, want 1", len(store.inserted))
	}
	cl := store.inserted[0]
	if cl.ID != 101 {
		t.Errorf("call log id = %d, want assigned 101", cl.ID)
	}
	if !reflect.DeepEqual(store.stamped[101], []int64{1, 2, 3}) {
		t.Errorf("stamped cels = %v, want [1 2 3]", store.stamped[101])
	}
	if len(bus.published) == 0 {
		t.Error("expected created events on the bus")
	}
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, nil)
	defer p.Stop()

	p.HandleMessage("pbx/ami/cel", []byte(`{"data":{"EventName":"CHAN_START","LinkedID":"1234.5"}}`))
	p.HandleMessage("pbx/ami/status", []byte(`{"data":{"EventName":"LINKEDID_END","LinkedID":"1234.5"}}`))

	if len(store.fetched) != 0 {
		t.Errorf("fetched = %v, want none", store.fetched)
	}
}

func TestProcessLinkedIDSupersedesPriorCallLogs(t *testing.T) {
	prior := int64(77)
	store := newFakeStore()
	store.cels["1234.5"] = simpleCallCELs("1234.5", &prior)
	p := newTestPipeline(store, nil)
	defer p.Stop()

	if err := p.ProcessLinkedID(context.Background(), "1234.5"); err != nil {
		t.Fatalf("ProcessLinkedID failed: %v", err)
	}
	if len(store.deleted) != 1 || !reflect.DeepEqual(store.deleted[0], []int64{77}) {
		t.Errorf("deleted = %v, want [[77]]", store.deleted)
	}
	if len(store.inserted) != 1 {
		t.Errorf("inserted = %d, want 1 regenerated call log", len(store.inserted))
	}
}

func TestProcessLinkedIDNoCELs(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, nil)
	defer p.Stop()

	if err := p.ProcessLinkedID(context.Background(), "unknown"); err != nil {
		t.Fatalf("missing cels must not be an error: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted = %d, want 0", len(store.inserted))
	}
}
