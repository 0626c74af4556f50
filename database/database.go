package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"upswatch/models"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
	// writeMu serializes aggregate writes so concurrent flush paths cannot
	// interleave rows for the same minute.
	writeMu sync.Mutex
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{DB: db}, nil
}

// SaveAggregate inserts one averaged record into ups_dynamic_data.
func (db *DB) SaveAggregate(rec *models.AggregateRecord) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	query := `
		INSERT INTO ups_dynamic_data (
			timestamp_tz, ups_status, ups_load, battery_charge, battery_runtime,
			battery_voltage, input_voltage, output_voltage, ups_realpower,
			ups_realpower_nominal, ups_temperature, ups_realpower_hrs, ups_realpower_days
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := db.QueryRow(query,
		rec.TimestampTZ, rec.UPSStatus, rec.UPSLoad, rec.BatteryCharge,
		rec.BatteryRuntime, rec.BatteryVoltage, rec.InputVoltage,
		rec.OutputVoltage, rec.UPSRealpower, rec.UPSRealpowerNominal,
		rec.UPSTemperature, rec.UPSRealpowerHrs, rec.UPSRealpowerDays,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert aggregate: %v", err)
	}

	return nil
}

// RealpowerMeanBetween returns the mean ups_realpower over records with
// start <= timestamp_tz < end, or nil when no rows carry a power reading.
func (db *DB) RealpowerMeanBetween(start, end time.Time) (*float64, error) {
	query := `
		SELECT AVG(ups_realpower)
		FROM ups_dynamic_data
		WHERE timestamp_tz >= $1 AND timestamp_tz < $2
	`

	var mean sql.NullFloat64
	if err := db.QueryRow(query, start, end).Scan(&mean); err != nil {
		return nil, fmt.Errorf("failed to query power mean: %v", err)
	}
	if !mean.Valid {
		return nil, nil
	}
	return &mean.Float64, nil
}

// RealpowerHrsMeanBetween returns the mean ups_realpower_hrs over records
// with start <= timestamp_tz < end, or nil when no rows carry an hourly
// value.
func (db *DB) RealpowerHrsMeanBetween(start, end time.Time) (*float64, error) {
	query := `
		SELECT AVG(ups_realpower_hrs)
		FROM ups_dynamic_data
		WHERE timestamp_tz >= $1 AND timestamp_tz < $2
	`

	var mean sql.NullFloat64
	if err := db.QueryRow(query, start, end).Scan(&mean); err != nil {
		return nil, fmt.Errorf("failed to query hourly power mean: %v", err)
	}
	if !mean.Valid {
		return nil, nil
	}
	return &mean.Float64, nil
}

// LatestAggregate returns the most recent ups_dynamic_data row, or nil when
// the table is empty.
func (db *DB) LatestAggregate() (*models.AggregateRecord, error) {
	query := `
		SELECT id, timestamp_tz, ups_status, ups_load, battery_charge,
			battery_runtime, battery_voltage, input_voltage, output_voltage,
			ups_realpower, ups_realpower_nominal, ups_temperature,
			ups_realpower_hrs, ups_realpower_days
		FROM ups_dynamic_data
		ORDER BY timestamp_tz DESC
		LIMIT 1
	`

	var rec models.AggregateRecord
	err := db.QueryRow(query).Scan(
		&rec.ID, &rec.TimestampTZ, &rec.UPSStatus, &rec.UPSLoad,
		&rec.BatteryCharge, &rec.BatteryRuntime, &rec.BatteryVoltage,
		&rec.InputVoltage, &rec.OutputVoltage, &rec.UPSRealpower,
		&rec.UPSRealpowerNominal, &rec.UPSTemperature,
		&rec.UPSRealpowerHrs, &rec.UPSRealpowerDays,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest aggregate: %v", err)
	}

	return &rec, nil
}

// BackfillDailyRollup inserts the previous day's rollup record when the
// live rollup was missed, typically after a restart spanning midnight. The
// record lands at the start of the previous day and its ups_realpower_days
// is the mean of that day's hourly values.
func (db *DB) BackfillDailyRollup(now time.Time, loc *time.Location) error {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	prevDay := midnight.AddDate(0, 0, -1)

	result, err := db.Exec(`
		INSERT INTO ups_dynamic_data (timestamp_tz, ups_realpower_days)
		SELECT $1, AVG(ups_realpower_hrs)
		FROM ups_dynamic_data
		WHERE timestamp_tz >= $1 AND timestamp_tz < $2
		HAVING AVG(ups_realpower_hrs) IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM ups_dynamic_data
				WHERE timestamp_tz = $1 AND ups_realpower_days IS NOT NULL
			)
	`, prevDay, midnight)
	if err != nil {
		return fmt.Errorf("failed to backfill daily rollup: %v", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Printf("Backfilled daily power rollup for %s", prevDay.Format("2006-01-02"))
	}

	return nil
}

// RecordEvent closes any open event for the UPS and opens a new one, in a
// single transaction so there is never more than one open event per UPS.
func (db *DB) RecordEvent(upsName string, eventType models.EventType, message, sourceIP string) (*models.Event, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	now := time.Now()

	_, err = tx.Exec(`
		UPDATE ups_events
		SET timestamp_tz_end = $1
		WHERE ups_name = $2 AND timestamp_tz_end IS NULL
	`, now, upsName)
	if err != nil {
		return nil, fmt.Errorf("failed to close open event: %v", err)
	}

	event := &models.Event{
		UPSName:      upsName,
		EventType:    eventType,
		EventMessage: message,
		TimestampTZ:  now,
		BeginTZ:      now,
		SourceIP:     sourceIP,
	}

	err = tx.QueryRow(`
		INSERT INTO ups_events (ups_name, event_type, event_message, timestamp_tz, timestamp_tz_begin, source_ip, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING id
	`, upsName, string(eventType), message, now, now, sourceIP).Scan(&event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event: %v", err)
	}

	return event, nil
}

// LastClosedDuration returns how long the most recently closed event of one
// of the given types lasted, provided it ended within the relevance window.
// Returns nil when no such event exists, so stale episodes do not surface in
// recovery notifications.
func (db *DB) LastClosedDuration(upsName string, types []models.EventType, window time.Duration) (*time.Duration, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	query := `
		SELECT timestamp_tz_begin, timestamp_tz_end
		FROM ups_events
		WHERE ups_name = $1
			AND event_type = ANY($2)
			AND timestamp_tz_end IS NOT NULL
			AND timestamp_tz_end >= $3
		ORDER BY timestamp_tz_end DESC
		LIMIT 1
	`

	var begin, end time.Time
	err := db.QueryRow(query, upsName, pq.Array(names), time.Now().Add(-window)).Scan(&begin, &end)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event duration: %v", err)
	}

	d := end.Sub(begin)
	return &d, nil
}

// GetRecentEvents retrieves recent events, newest first.
func (db *DB) GetRecentEvents(limit int) ([]models.Event, error) {
	query := `
		SELECT id, ups_name, event_type, event_message, timestamp_tz,
			timestamp_tz_begin, timestamp_tz_end, source_ip, acknowledged
		FROM ups_events
		ORDER BY timestamp_tz DESC
		LIMIT $1
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %v", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		var eventType string
		err := rows.Scan(&event.ID, &event.UPSName, &eventType,
			&event.EventMessage, &event.TimestampTZ, &event.BeginTZ,
			&event.EndTZ, &event.SourceIP, &event.Acknowledged)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %v", err)
		}
		event.EventType = models.EventType(eventType)
		events = append(events, event)
	}

	return events, nil
}

// AcknowledgeEvent marks an event as acknowledged
func (db *DB) AcknowledgeEvent(eventID int64) error {
	result, err := db.Exec(`
		UPDATE ups_events
		SET acknowledged = true
		WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge event: %v", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %v", err)
	}
	if n == 0 {
		return fmt.Errorf("event %d not found", eventID)
	}

	return nil
}
