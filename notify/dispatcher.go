package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"upswatch/models"
)

// relevanceWindow bounds how far back a closed episode may lie and still be
// reported in a recovery notification.
const relevanceWindow = time.Hour

// durationSources maps recovery events to the episode types whose length
// they report.
var durationSources = map[models.EventType][]models.EventType{
	models.EventOnline: {models.EventOnBatt},
	models.EventCommOK: {models.EventCommBad, models.EventNoComm},
}

// EventStore is the subset of the database the dispatcher reads.
type EventStore interface {
	LastClosedDuration(upsName string, types []models.EventType, window time.Duration) (*time.Duration, error)
	LatestAggregate() (*models.AggregateRecord, error)
}

// Dispatcher fans a recorded event out to every notification channel. The
// event must already be persisted; delivery failures never lose history.
type Dispatcher struct {
	store    EventStore
	channels []Channel
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher over the given channels.
func NewDispatcher(store EventStore, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		store:    store,
		channels: channels,
		timeout:  60 * time.Second,
	}
}

// Dispatch sends the event through every channel concurrently and returns
// the per-target results. A failing channel cannot block or abort the
// others.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event) []Result {
	ec := d.buildContext(event)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results []Result
		wg      sync.WaitGroup
	)

	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Channel %s panicked: %v", ch.Name(), r)
					mu.Lock()
					results = append(results, Result{
						Channel: ch.Name(),
						Success: false,
						Message: "channel panicked",
					})
					mu.Unlock()
				}
			}()

			chResults := ch.Send(ctx, ec)
			mu.Lock()
			results = append(results, chResults...)
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	for _, r := range results {
		if r.Success {
			log.Printf("Notification for %s delivered via %s to %s", event.EventType, r.Channel, r.Target)
		} else {
			log.Printf("Notification for %s via %s to %s failed: %s", event.EventType, r.Channel, r.Target, r.Message)
		}
	}

	return results
}

// buildContext enriches the event with the closed-episode duration and the
// latest readings. Lookup failures degrade the notification, never block it.
func (d *Dispatcher) buildContext(event *models.Event) *EventContext {
	ec := &EventContext{Event: event}

	if sources, ok := durationSources[event.EventType]; ok {
		duration, err := d.store.LastClosedDuration(event.UPSName, sources, relevanceWindow)
		if err != nil {
			log.Printf("Failed to derive duration for %s: %v", event.EventType, err)
		} else {
			ec.Duration = duration
		}
	}

	data, err := d.store.LatestAggregate()
	if err != nil {
		log.Printf("Failed to load latest readings: %v", err)
	} else {
		ec.Data = data
	}

	return ec
}
