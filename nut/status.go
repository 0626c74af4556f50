package nut

import (
	"strings"

	"upswatch/models"
)

// statusFlagEvents lists ups_status flags and the event raised when the
// flag newly appears between two consecutive polls. Order matters: when
// several flags appear at once the later event ends up as the open one, so
// the most severe condition comes last.
var statusFlagEvents = []struct {
	flag  string
	event models.EventType
}{
	{"CAL", models.EventCal},
	{"TRIM", models.EventTrim},
	{"BOOST", models.EventBoost},
	{"BYPASS", models.EventBypass},
	{"OFF", models.EventOff},
	{"OVER", models.EventOverload},
	{"RB", models.EventReplBatt},
	{"OB", models.EventOnBatt},
	{"LB", models.EventLowBatt},
	{"FSD", models.EventFSD},
}

// statusFlags splits a ups_status value ("OL CHRG", "OB LB") into its flags.
func statusFlags(status string) map[string]bool {
	flags := make(map[string]bool)
	for _, f := range strings.Fields(status) {
		flags[f] = true
	}
	return flags
}

// StatusTransitions compares two consecutive ups_status values and returns
// the events implied by flags that appeared or cleared. ONLINE fires only
// when line power returns after a battery stint, not on every OL poll.
func StatusTransitions(prev, cur string) []models.EventType {
	if prev == cur {
		return nil
	}
	prevFlags := statusFlags(prev)
	curFlags := statusFlags(cur)

	var events []models.EventType
	for _, fe := range statusFlagEvents {
		if curFlags[fe.flag] && !prevFlags[fe.flag] {
			events = append(events, fe.event)
		}
	}
	if curFlags["OL"] && !prevFlags["OL"] && prevFlags["OB"] {
		events = append(events, models.EventOnline)
	}
	return events
}
