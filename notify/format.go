package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"upswatch/models"
)

// trimFloat renders a float without trailing zeros.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatMetric renders one snapshot value with its unit.
func formatMetric(key string, v float64) string {
	switch key {
	case "ups_load", "battery_charge":
		return trimFloat(v) + "%"
	case "input_voltage", "output_voltage", "battery_voltage":
		return trimFloat(v) + " V"
	case "ups_realpower", "ups_realpower_nominal":
		return trimFloat(v) + " W"
	case "ups_temperature":
		return trimFloat(v) + " °C"
	case "battery_runtime":
		return FormatDuration(time.Duration(v) * time.Second)
	}
	return trimFloat(v)
}

// FormatDuration renders a duration in the largest sensible unit, seconds
// below a minute and minutes above.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second).Seconds())
	switch {
	case secs < 60:
		return plural(secs, "second")
	case secs < 3600:
		return plural(secs/60, "minute")
	default:
		out := plural(secs/3600, "hour")
		if m := (secs % 3600) / 60; m > 0 {
			out += " " + plural(m, "minute")
		}
		return out
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Subject renders the one-line summary used as email subject and push
// title.
func Subject(ec *EventContext) string {
	return fmt.Sprintf("[%s] %s", ec.Event.UPSName, ec.Event.EventType.Title())
}

// snapshotKeys is the render order for the status block.
var snapshotKeys = []string{
	"ups_status", "battery_charge", "battery_runtime", "ups_load",
	"ups_realpower", "input_voltage", "output_voltage", "ups_temperature",
}

var snapshotLabels = map[string]string{
	"ups_status":      "Status",
	"battery_charge":  "Battery charge",
	"battery_runtime": "Battery runtime",
	"ups_load":        "Load",
	"ups_realpower":   "Power",
	"input_voltage":   "Input voltage",
	"output_voltage":  "Output voltage",
	"ups_temperature": "Temperature",
}

// Body renders the notification text: the event description, the duration
// of the episode a recovery closed, and the current readings.
func Body(ec *EventContext) string {
	var b strings.Builder

	b.WriteString(ec.Event.EventType.Description())
	if ec.Event.EventMessage != "" {
		b.WriteString("\n")
		b.WriteString(ec.Event.EventMessage)
	}

	if ec.Duration != nil {
		switch ec.Event.EventType {
		case models.EventOnline:
			fmt.Fprintf(&b, "\nTime on battery: %s", FormatDuration(*ec.Duration))
		case models.EventCommOK:
			fmt.Fprintf(&b, "\nCommunication was lost for %s", FormatDuration(*ec.Duration))
		default:
			fmt.Fprintf(&b, "\nDuration: %s", FormatDuration(*ec.Duration))
		}
	}

	if lines := snapshotLines(ec.Data); len(lines) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	return b.String()
}

// HTMLBody renders the email variant of Body.
func HTMLBody(ec *EventContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<html><body>\n<h2>%s</h2>\n", html.EscapeString(ec.Event.EventType.Title()))
	fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(ec.Event.EventType.Description()))
	if ec.Event.EventMessage != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(ec.Event.EventMessage))
	}

	if ec.Duration != nil {
		switch ec.Event.EventType {
		case models.EventOnline:
			fmt.Fprintf(&b, "<p>Time on battery: <strong>%s</strong></p>\n", FormatDuration(*ec.Duration))
		case models.EventCommOK:
			fmt.Fprintf(&b, "<p>Communication was lost for <strong>%s</strong></p>\n", FormatDuration(*ec.Duration))
		default:
			fmt.Fprintf(&b, "<p>Duration: <strong>%s</strong></p>\n", FormatDuration(*ec.Duration))
		}
	}

	if lines := snapshotLines(ec.Data); len(lines) > 0 {
		b.WriteString("<table>\n")
		for _, line := range lines {
			label, value, _ := strings.Cut(line, ": ")
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>\n",
				html.EscapeString(label), html.EscapeString(value))
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("</body></html>")
	return b.String()
}

// snapshotLines renders the "Label: value" rows of the status block.
func snapshotLines(data *models.AggregateRecord) []string {
	if data == nil {
		return nil
	}
	fields := data.Fields()
	var lines []string
	for _, key := range snapshotKeys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case float64:
			lines = append(lines, fmt.Sprintf("%s: %s", snapshotLabels[key], formatMetric(key, val)))
		case string:
			lines = append(lines, fmt.Sprintf("%s: %s", snapshotLabels[key], val))
		}
	}
	return lines
}
