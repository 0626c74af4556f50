package websocket

import (
	"testing"

	"upswatch/models"
)

func record(status string, load, charge, power, voltage float64) *models.AggregateRecord {
	return &models.AggregateRecord{
		UPSStatus:     status,
		UPSLoad:       &load,
		BatteryCharge: &charge,
		UPSRealpower:  &power,
		InputVoltage:  &voltage,
	}
}

func TestIsSignificantFirstBroadcast(t *testing.T) {
	h := NewHub(nil)
	if !h.isSignificant(record("OL", 20, 100, 200, 230)) {
		t.Error("first record not significant")
	}
}

func TestIsSignificant(t *testing.T) {
	tests := []struct {
		name string
		next *models.AggregateRecord
		want bool
	}{
		{"identical", record("OL", 20, 100, 200, 230), false},
		{"sub-threshold drift", record("OL", 20.5, 99.8, 200.3, 230.9), false},
		{"status change", record("OB DISCHRG", 20, 100, 200, 230), true},
		{"load jump", record("OL", 21.5, 100, 200, 230), true},
		{"charge drop", record("OL", 20, 98.9, 200, 230), true},
		{"power jump", record("OL", 20, 100, 202, 230), true},
		{"voltage sag", record("OL", 20, 100, 200, 228), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(nil)
			h.lastBroadcast = record("OL", 20, 100, 200, 230)
			if got := h.isSignificant(tt.next); got != tt.want {
				t.Errorf("isSignificant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSignificantMetricAppears(t *testing.T) {
	h := NewHub(nil)
	h.lastBroadcast = &models.AggregateRecord{UPSStatus: "OL"}
	if !h.isSignificant(record("OL", 20, 100, 200, 230)) {
		t.Error("record gaining metrics not significant")
	}
}

func TestBroadcastAggregateUpdatesLast(t *testing.T) {
	h := NewHub(nil)
	first := record("OL", 20, 100, 200, 230)
	h.BroadcastAggregate(first)
	if h.lastBroadcast != first {
		t.Fatal("lastBroadcast not set after significant broadcast")
	}

	// An insignificant follow-up must not replace the reference point,
	// otherwise slow drift never triggers a push.
	drift := record("OL", 20.5, 100, 200, 230)
	h.BroadcastAggregate(drift)
	if h.lastBroadcast != first {
		t.Error("lastBroadcast replaced by insignificant record")
	}

	jump := record("OL", 21.5, 100, 200, 230)
	h.BroadcastAggregate(jump)
	if h.lastBroadcast != jump {
		t.Error("lastBroadcast not replaced by significant record")
	}
}

func sample(status string, load float64) *models.Sample {
	s := &models.Sample{UPSStatus: status}
	s.SetNumeric("ups_load", load)
	s.SetNumeric("battery_charge", 100)
	return s
}

func TestBroadcastSample(t *testing.T) {
	h := NewHub(nil)
	h.BroadcastSample(sample("OL", 20))
	if h.lastBroadcast == nil {
		t.Fatal("first sample not broadcast")
	}
	if h.lastBroadcast.UPSLoad == nil || *h.lastBroadcast.UPSLoad != 20 {
		t.Errorf("broadcast UPSLoad = %v, want 20", h.lastBroadcast.UPSLoad)
	}

	// Per-poll drift below one unit stays suppressed.
	first := h.lastBroadcast
	h.BroadcastSample(sample("OL", 20.5))
	if h.lastBroadcast != first {
		t.Error("sub-threshold sample replaced last broadcast")
	}

	h.BroadcastSample(sample("OB DISCHRG", 20.5))
	if h.lastBroadcast == first {
		t.Error("status change in sample not broadcast")
	}
}
