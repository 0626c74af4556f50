// Package cache buffers UPS samples between polls and aggregates them into
// persisted per-minute records with hourly and daily power rollups.
package cache

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"upswatch/models"
)

// Store persists aggregate records and answers rollup queries.
type Store interface {
	SaveAggregate(rec *models.AggregateRecord) error
	// RealpowerMeanBetween returns the mean ups_realpower over persisted
	// records with start <= timestamp < end, or nil when no rows match.
	RealpowerMeanBetween(start, end time.Time) (*float64, error)
	// RealpowerHrsMeanBetween is the same query over ups_realpower_hrs,
	// feeding the daily rollup from the hourly values.
	RealpowerHrsMeanBetween(start, end time.Time) (*float64, error)
}

// Aggregator accumulates samples and writes one averaged record per minute,
// aligned to wall-clock boundaries.
type Aggregator struct {
	mu    sync.Mutex
	store Store
	loc   *time.Location

	bufferCap int
	buffer    []*models.Sample

	// nextSaveTime, nextHour and nextDay are zero until the first sample
	// arrives, then always the next minute, hour and midnight boundaries.
	// The hour and day markers only advance once their rollup has run, so
	// a flush that lands late still catches up on the crossed boundary.
	nextSaveTime time.Time
	nextHour     time.Time
	nextDay      time.Time
	// lastDailyDate guards the midnight rollup so a restart during the
	// first minute of a day does not aggregate the same day twice.
	lastDailyDate string
}

// New creates an Aggregator. The buffer capacity is sized to hold one cache
// window at the configured polling rate, never below 5 samples.
func New(store Store, loc *time.Location, windowSeconds int, pollInterval time.Duration) *Aggregator {
	capacity := 5
	if secs := int(pollInterval.Seconds()); secs > 0 && windowSeconds/secs > capacity {
		capacity = windowSeconds / secs
	}
	return &Aggregator{
		store:     store,
		loc:       loc,
		bufferCap: capacity,
	}
}

// SetBufferCap overrides the computed buffer capacity.
func (a *Aggregator) SetBufferCap(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bufferCap = n
}

// Add appends a sample. The first sample pins the save boundaries to the
// minute, hour and midnight following its timestamp. Nothing is ever
// evicted: if persistence is down the buffer keeps growing until a flush
// succeeds.
func (a *Aggregator) Add(sample *models.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nextSaveTime.IsZero() {
		ts := sample.Timestamp.In(a.loc)
		a.nextSaveTime = ts.Truncate(time.Minute).Add(time.Minute)
		a.nextHour = ts.Truncate(time.Hour).Add(time.Hour)
		a.nextDay = nextMidnight(ts)
	}
	a.buffer = append(a.buffer, sample)
}

// Len returns the current buffer size.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// IsSaveTime reports whether the buffered samples should be flushed, either
// because the next minute boundary has passed or because the buffer has
// reached capacity.
func (a *Aggregator) IsSaveTime(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffer) >= a.bufferCap {
		return true
	}
	return !a.nextSaveTime.IsZero() && !now.In(a.loc).Before(a.nextSaveTime)
}

// CalculateAverages reduces the buffered samples to a single record:
// numeric fields become the mean rounded to 2 decimals, text fields take
// the most recent value. Returns nil when the buffer is empty.
func (a *Aggregator) CalculateAverages() *models.AggregateRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.averagesLocked()
}

func (a *Aggregator) averagesLocked() *models.AggregateRecord {
	if len(a.buffer) == 0 {
		return nil
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range a.buffer {
		for key, v := range s.NumericFields() {
			sums[key] += v
			counts[key]++
		}
	}

	rec := &models.AggregateRecord{}
	for key, sum := range sums {
		avg := math.Round(sum/float64(counts[key])*100) / 100
		if !rec.SetColumn(key, avg) {
			log.Printf("Dropping unmapped metric %s from aggregate", key)
		}
	}

	last := a.buffer[len(a.buffer)-1]
	rec.UPSStatus = last.UPSStatus
	return rec
}

// Flush averages the buffer and persists the record for the boundary that
// just passed, returning the stored record. Crossing an hour boundary sets
// ups_realpower_hrs on the record from the completed hour's minute rows;
// crossing midnight additionally inserts a separate record at the start of
// the previous day carrying ups_realpower_days. The buffer is retained when
// the save fails so the samples are not lost.
func (a *Aggregator) Flush(now time.Time) (*models.AggregateRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	nowLoc := now.In(a.loc)

	boundary := a.nextSaveTime
	rec := a.averagesLocked()
	if rec == nil {
		a.nextSaveTime = nowLoc.Truncate(time.Minute).Add(time.Minute)
		return nil, nil
	}
	rec.TimestampTZ = boundary

	if !a.nextHour.IsZero() && !nowLoc.Before(a.nextHour) {
		hour := a.nextHour
		if mean, err := a.store.RealpowerMeanBetween(hour.Add(-time.Hour), hour); err != nil {
			log.Printf("Hourly power rollup failed: %v", err)
		} else {
			rec.UPSRealpowerHrs = mean
		}
	}

	if err := a.store.SaveAggregate(rec); err != nil {
		return nil, fmt.Errorf("failed to save aggregate: %v", err)
	}
	a.buffer = a.buffer[:0]

	if !a.nextHour.IsZero() && !nowLoc.Before(a.nextHour) {
		a.nextHour = nowLoc.Truncate(time.Hour).Add(time.Hour)
	}
	if !a.nextDay.IsZero() && !nowLoc.Before(a.nextDay) {
		a.rollupDailyLocked()
		a.nextDay = nextMidnight(nowLoc)
	}

	a.nextSaveTime = nowLoc.Truncate(time.Minute).Add(time.Minute)
	return rec, nil
}

// rollupDailyLocked inserts one record at the start of the completed day
// whose ups_realpower_days is the mean of that day's hourly values.
func (a *Aggregator) rollupDailyLocked() {
	midnight := a.nextDay
	prevDay := midnight.AddDate(0, 0, -1)
	date := prevDay.Format("2006-01-02")
	if date == a.lastDailyDate {
		return
	}

	mean, err := a.store.RealpowerHrsMeanBetween(prevDay, midnight)
	if err != nil {
		log.Printf("Daily power rollup failed: %v", err)
		return
	}
	if mean == nil {
		a.lastDailyDate = date
		return
	}

	daily := &models.AggregateRecord{TimestampTZ: prevDay, UPSRealpowerDays: mean}
	if err := a.store.SaveAggregate(daily); err != nil {
		log.Printf("Failed to save daily rollup: %v", err)
		return
	}
	a.lastDailyDate = date
}

// nextMidnight returns the start of the day after t, in t's location.
func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
