// Package nut reads UPS status through the Network UPS Tools client.
package nut

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"upswatch/models"
)

// ConnectionError indicates the status command could not reach the UPS
// driver. Distinguished from DataError so the poller can raise
// communication events instead of treating it as bad data.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DataError indicates the command ran but produced output that could not be
// interpreted as a UPS variable listing.
type DataError struct {
	Target string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad data from %s: %s", e.Target, e.Reason)
}

// Reader polls a single UPS via the upsc command.
type Reader struct {
	command string
	target  string
	timeout time.Duration
	// nominalFallback is used to derive realpower when the device reports
	// neither ups.realpower nor ups.realpower.nominal.
	nominalFallback float64
}

// NewReader creates a Reader for the given name@host target.
func NewReader(command, target string, timeout time.Duration, nominalFallback float64) *Reader {
	return &Reader{
		command:         command,
		target:          target,
		timeout:         timeout,
		nominalFallback: nominalFallback,
	}
}

// Target returns the name@host this reader polls.
func (r *Reader) Target() string { return r.target }

// Read executes the status command once and returns a typed sample.
func (r *Reader) Read(ctx context.Context) (*models.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, r.target)
	out, err := cmd.Output()
	if err != nil {
		return nil, &ConnectionError{Target: r.target, Err: err}
	}

	sample, err := r.parse(string(out))
	if err != nil {
		return nil, err
	}
	return sample, nil
}

// parse converts upsc output into a Sample. Lines are "key: value"; keys use
// dotted notation which becomes underscore notation to match column names.
func (r *Reader) parse(out string) (*models.Sample, error) {
	sample := &models.Sample{Timestamp: time.Now()}
	seen := 0

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			log.Printf("Skipping malformed line from %s: %q", r.target, line)
			continue
		}
		key = strings.ReplaceAll(strings.TrimSpace(key), ".", "_")
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		seen++

		if num, err := strconv.ParseFloat(value, 64); err == nil && key != "ups_status" {
			sample.SetNumeric(key, num)
		} else {
			sample.SetText(key, value)
		}
	}

	if seen == 0 {
		return nil, &DataError{Target: r.target, Reason: "no variables in output"}
	}

	r.deriveRealpower(sample)
	return sample, nil
}

// deriveRealpower fills ups_realpower from nominal power and load when the
// device does not report it, or reports a flat zero as some models do under
// load.
func (r *Reader) deriveRealpower(s *models.Sample) {
	if s.UPSRealpower != nil && *s.UPSRealpower != 0 {
		return
	}
	load := s.UPSLoad
	if load == nil {
		return
	}

	nominal := r.nominalFallback
	if s.UPSRealpowerNominal != nil {
		nominal = *s.UPSRealpowerNominal
	}
	if nominal <= 0 {
		return
	}

	derived := nominal * (*load) / 100.0
	s.UPSRealpower = &derived
}
