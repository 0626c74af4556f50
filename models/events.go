package models

// EventType is a canonical UPS state-transition type, matching the upsmon
// NOTIFYTYPE vocabulary plus the ups.status mode flags.
type EventType string

const (
	EventOnline   EventType = "ONLINE"
	EventOnBatt   EventType = "ONBATT"
	EventLowBatt  EventType = "LOWBATT"
	EventCommOK   EventType = "COMMOK"
	EventCommBad  EventType = "COMMBAD"
	EventShutdown EventType = "SHUTDOWN"
	EventReplBatt EventType = "REPLBATT"
	EventNoComm   EventType = "NOCOMM"
	EventNoParent EventType = "NOPARENT"
	EventFSD      EventType = "FSD"

	EventCal      EventType = "CAL"
	EventTrim     EventType = "TRIM"
	EventBoost    EventType = "BOOST"
	EventOff      EventType = "OFF"
	EventOverload EventType = "OVERLOAD"
	EventBypass   EventType = "BYPASS"
	EventNoBatt   EventType = "NOBATT"
	EventDataOld  EventType = "DATAOLD"
)

// EventTypes lists every canonical event type. Order matters only for
// deterministic seeding of notification settings.
var EventTypes = []EventType{
	EventOnline, EventOnBatt, EventLowBatt, EventCommOK, EventCommBad,
	EventShutdown, EventReplBatt, EventNoComm, EventNoParent, EventFSD,
	EventCal, EventTrim, EventBoost, EventOff, EventOverload, EventBypass,
	EventNoBatt, EventDataOld,
}

var knownEventTypes = func() map[EventType]bool {
	m := make(map[EventType]bool, len(EventTypes))
	for _, t := range EventTypes {
		m[t] = true
	}
	return m
}()

// Valid reports whether t is one of the canonical event types.
func (t EventType) Valid() bool {
	return knownEventTypes[t]
}

var eventDescriptions = map[EventType]string{
	EventOnline:   "UPS is now running on line power",
	EventOnBatt:   "UPS has switched to battery power",
	EventLowBatt:  "UPS battery is running low",
	EventCommOK:   "Communication with UPS has been restored",
	EventCommBad:  "Communication with UPS has been lost",
	EventShutdown: "System shutdown is imminent due to low battery",
	EventReplBatt: "UPS battery needs replacement",
	EventNoComm:   "Cannot communicate with the UPS",
	EventNoParent: "Parent process has been lost",
	EventFSD:      "UPS is performing a forced shutdown",
	EventCal:      "UPS is performing calibration",
	EventTrim:     "UPS is trimming incoming voltage",
	EventBoost:    "UPS is boosting incoming voltage",
	EventOff:      "UPS is switched off",
	EventOverload: "UPS is overloaded",
	EventBypass:   "UPS is in bypass mode",
	EventNoBatt:   "UPS has no battery",
	EventDataOld:  "UPS data is too old",
}

// Description returns a human-readable description for the event type.
func (t EventType) Description() string {
	if d, ok := eventDescriptions[t]; ok {
		return d
	}
	return "Unknown event: " + string(t)
}

var eventTitles = map[EventType]string{
	EventOnline:   "UPS Online",
	EventOnBatt:   "UPS On Battery",
	EventLowBatt:  "UPS Low Battery",
	EventCommOK:   "UPS Communication Restored",
	EventCommBad:  "UPS Communication Lost",
	EventShutdown: "System Shutdown Imminent",
	EventReplBatt: "UPS Battery Needs Replacement",
	EventNoComm:   "UPS Not Reachable",
	EventNoParent: "Parent Process Lost",
	EventFSD:      "UPS Forced Shutdown",
	EventCal:      "UPS Calibration",
	EventTrim:     "UPS Trimming Voltage",
	EventBoost:    "UPS Boosting Voltage",
	EventOff:      "UPS Switched Off",
	EventOverload: "UPS Overloaded",
	EventBypass:   "UPS In Bypass",
	EventNoBatt:   "UPS Battery Missing",
	EventDataOld:  "UPS Data Stale",
}

// Title returns a short notification title for the event type.
func (t EventType) Title() string {
	if s, ok := eventTitles[t]; ok {
		return s
	}
	return "UPS Event: " + string(t)
}

var eventPriorities = map[EventType]int{
	EventLowBatt:  5,
	EventShutdown: 5,
	EventFSD:      5,
	EventOnBatt:   4,
	EventCommBad:  4,
	EventNoComm:   4,
	EventOverload: 4,
	EventReplBatt: 3,
	EventNoParent: 3,
	EventOnline:   3,
	EventNoBatt:   3,
	EventCommOK:   2,
}

// Priority maps the event type onto the 1..5 ntfy priority scale; the
// default for informational events is 3.
func (t EventType) Priority() int {
	if p, ok := eventPriorities[t]; ok {
		return p
	}
	return 3
}

var eventTags = map[EventType]string{
	EventOnline:   "white_check_mark",
	EventOnBatt:   "battery",
	EventLowBatt:  "warning,battery",
	EventCommOK:   "signal_strength",
	EventCommBad:  "no_mobile_phones",
	EventShutdown: "sos,warning",
	EventReplBatt: "wrench,battery",
	EventNoComm:   "no_entry,warning",
	EventNoParent: "ghost",
	EventFSD:      "sos,warning",
	EventOverload: "warning",
	EventNoBatt:   "battery,question",
}

// Tags returns the ntfy tag list for the event type, empty when none apply.
func (t EventType) Tags() string {
	return eventTags[t]
}
