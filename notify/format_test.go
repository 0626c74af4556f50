package notify

import (
	"strings"
	"testing"
	"time"

	"upswatch/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute"},
		{5 * time.Minute, "5 minutes"},
		{time.Hour, "1 hour"},
		{72 * time.Minute, "1 hour 12 minutes"},
		{-time.Second, "0 seconds"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		key  string
		v    float64
		want string
	}{
		{"ups_load", 24, "24%"},
		{"battery_charge", 99.5, "99.5%"},
		{"input_voltage", 230.1, "230.1 V"},
		{"ups_realpower", 216, "216 W"},
		{"battery_runtime", 2220, "37 minutes"},
	}
	for _, tt := range tests {
		if got := formatMetric(tt.key, tt.v); got != tt.want {
			t.Errorf("formatMetric(%q, %v) = %q, want %q", tt.key, tt.v, got, tt.want)
		}
	}
}

func TestSubject(t *testing.T) {
	ec := &EventContext{Event: &models.Event{UPSName: "apc1500", EventType: models.EventOnBatt}}
	got := Subject(ec)
	if !strings.Contains(got, "apc1500") {
		t.Errorf("Subject() = %q, missing UPS name", got)
	}
}

func TestBodyOnlineDuration(t *testing.T) {
	d := 5 * time.Minute
	ec := &EventContext{
		Event:    &models.Event{UPSName: "ups", EventType: models.EventOnline},
		Duration: &d,
	}
	body := Body(ec)
	if !strings.Contains(body, "Time on battery: 5 minutes") {
		t.Errorf("Body() = %q, missing battery duration", body)
	}
}

func TestBodyCommRestoredDuration(t *testing.T) {
	d := 90 * time.Second
	ec := &EventContext{
		Event:    &models.Event{UPSName: "ups", EventType: models.EventCommOK},
		Duration: &d,
	}
	body := Body(ec)
	if !strings.Contains(body, "Communication was lost for 1 minute") {
		t.Errorf("Body() = %q, missing comm loss duration", body)
	}
}

func TestBodyNoDuration(t *testing.T) {
	ec := &EventContext{Event: &models.Event{UPSName: "ups", EventType: models.EventOnline}}
	body := Body(ec)
	if strings.Contains(body, "Time on battery") {
		t.Errorf("Body() = %q, has duration line without a duration", body)
	}
}

func TestBodySnapshot(t *testing.T) {
	load := 24.0
	charge := 99.5
	ec := &EventContext{
		Event: &models.Event{UPSName: "ups", EventType: models.EventOnBatt},
		Data: &models.AggregateRecord{
			UPSStatus:     "OB DISCHRG",
			UPSLoad:       &load,
			BatteryCharge: &charge,
		},
	}
	body := Body(ec)
	for _, want := range []string{"Status: OB DISCHRG", "Load: 24%", "Battery charge: 99.5%"} {
		if !strings.Contains(body, want) {
			t.Errorf("Body() = %q, missing %q", body, want)
		}
	}
}

func TestHTMLBody(t *testing.T) {
	d := 72 * time.Second
	charge := 99.5
	ec := &EventContext{
		Event:    &models.Event{UPSName: "ups", EventType: models.EventOnline},
		Duration: &d,
		Data:     &models.AggregateRecord{BatteryCharge: &charge},
	}
	body := HTMLBody(ec)
	for _, want := range []string{
		"<h2>UPS Online</h2>",
		"Time on battery: <strong>1 minute</strong>",
		"<td>Battery charge</td><td>99.5%</td>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("HTMLBody() = %q, missing %q", body, want)
		}
	}
}
