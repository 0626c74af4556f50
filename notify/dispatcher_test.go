package notify

import (
	"context"
	"testing"
	"time"

	"upswatch/models"
)

type eventStoreStub struct {
	duration  *time.Duration
	durTypes  []models.EventType
	aggregate *models.AggregateRecord
}

func (s *eventStoreStub) LastClosedDuration(upsName string, types []models.EventType, window time.Duration) (*time.Duration, error) {
	s.durTypes = types
	return s.duration, nil
}

func (s *eventStoreStub) LatestAggregate() (*models.AggregateRecord, error) {
	return s.aggregate, nil
}

type channelStub struct {
	name    string
	results []Result
	got     *EventContext
	panics  bool
}

func (c *channelStub) Name() string { return c.name }

func (c *channelStub) Send(ctx context.Context, ec *EventContext) []Result {
	c.got = ec
	if c.panics {
		panic("boom")
	}
	return c.results
}

func TestDispatchFansOut(t *testing.T) {
	a := &channelStub{name: "a", results: []Result{{Channel: "a", Success: true}}}
	b := &channelStub{name: "b", results: []Result{{Channel: "b", Success: false, Message: "down"}}}
	d := NewDispatcher(&eventStoreStub{}, a, b)

	event := &models.Event{UPSName: "ups", EventType: models.EventOnBatt}
	results := d.Dispatch(context.Background(), event)

	if len(results) != 2 {
		t.Fatalf("Dispatch() returned %d results, want 2", len(results))
	}
	if a.got == nil || b.got == nil {
		t.Error("not every channel received the event")
	}
}

func TestDispatchIsolatesPanics(t *testing.T) {
	bad := &channelStub{name: "bad", panics: true}
	good := &channelStub{name: "good", results: []Result{{Channel: "good", Success: true}}}
	d := NewDispatcher(&eventStoreStub{}, bad, good)

	event := &models.Event{UPSName: "ups", EventType: models.EventOnBatt}
	results := d.Dispatch(context.Background(), event)

	var goodOK, badReported bool
	for _, r := range results {
		if r.Channel == "good" && r.Success {
			goodOK = true
		}
		if r.Channel == "bad" && !r.Success {
			badReported = true
		}
	}
	if !goodOK {
		t.Error("healthy channel result missing after sibling panic")
	}
	if !badReported {
		t.Error("panicking channel not reported as failed")
	}
}

func TestDispatchDerivesOnlineDuration(t *testing.T) {
	dur := 7 * time.Minute
	store := &eventStoreStub{duration: &dur}
	ch := &channelStub{name: "a"}
	d := NewDispatcher(store, ch)

	event := &models.Event{UPSName: "ups", EventType: models.EventOnline}
	d.Dispatch(context.Background(), event)

	if ch.got.Duration == nil || *ch.got.Duration != dur {
		t.Errorf("Duration = %v, want %v", ch.got.Duration, dur)
	}
	if len(store.durTypes) != 1 || store.durTypes[0] != models.EventOnBatt {
		t.Errorf("duration source types = %v, want [ONBATT]", store.durTypes)
	}
}

func TestDispatchDerivesCommOKDuration(t *testing.T) {
	dur := time.Minute
	store := &eventStoreStub{duration: &dur}
	ch := &channelStub{name: "a"}
	d := NewDispatcher(store, ch)

	event := &models.Event{UPSName: "ups", EventType: models.EventCommOK}
	d.Dispatch(context.Background(), event)

	if len(store.durTypes) != 2 {
		t.Fatalf("duration source types = %v, want [COMMBAD NOCOMM]", store.durTypes)
	}
}

func TestDispatchNoDurationForNonRecovery(t *testing.T) {
	dur := time.Minute
	store := &eventStoreStub{duration: &dur}
	ch := &channelStub{name: "a"}
	d := NewDispatcher(store, ch)

	event := &models.Event{UPSName: "ups", EventType: models.EventOnBatt}
	d.Dispatch(context.Background(), event)

	if ch.got.Duration != nil {
		t.Errorf("Duration = %v for ONBATT, want nil", *ch.got.Duration)
	}
	if store.durTypes != nil {
		t.Errorf("duration queried for non-recovery event: %v", store.durTypes)
	}
}

func TestDispatchAttachesLatestData(t *testing.T) {
	load := 20.0
	store := &eventStoreStub{aggregate: &models.AggregateRecord{UPSStatus: "OL", UPSLoad: &load}}
	ch := &channelStub{name: "a"}
	d := NewDispatcher(store, ch)

	d.Dispatch(context.Background(), &models.Event{UPSName: "ups", EventType: models.EventOnBatt})
	if ch.got.Data == nil || ch.got.Data.UPSStatus != "OL" {
		t.Error("latest aggregate not attached to event context")
	}
}
