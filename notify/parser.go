package notify

import (
	"regexp"
	"strings"

	"upswatch/models"
)

// upsNamePattern extracts the UPS name from upsmon-style message text.
var upsNamePattern = regexp.MustCompile(`(?i)UPS\s+([^\s:]+)`)

// textPatterns maps message phrasing to event types. Ordered because some
// phrases embed others; first match wins. The phrasing follows the default
// upsmon NOTIFYMSG strings.
var textPatterns = []struct {
	pattern *regexp.Regexp
	event   models.EventType
}{
	{regexp.MustCompile(`(?i)battery is low`), models.EventLowBatt},
	{regexp.MustCompile(`(?i)battery needs to be replaced|replace battery`), models.EventReplBatt},
	{regexp.MustCompile(`(?i)battery is missing`), models.EventNoBatt},
	{regexp.MustCompile(`(?i)on battery`), models.EventOnBatt},
	{regexp.MustCompile(`(?i)on line power`), models.EventOnline},
	{regexp.MustCompile(`(?i)communications? with UPS .* established`), models.EventCommOK},
	{regexp.MustCompile(`(?i)communications? with UPS .* lost`), models.EventCommBad},
	{regexp.MustCompile(`(?i)is unavailable`), models.EventNoComm},
	{regexp.MustCompile(`(?i)forced shutdown`), models.EventFSD},
	{regexp.MustCompile(`(?i)shutdown proceeding|shutdown imminent`), models.EventShutdown},
	{regexp.MustCompile(`(?i)parent process died`), models.EventNoParent},
	{regexp.MustCompile(`(?i)calibration in progress`), models.EventCal},
	{regexp.MustCompile(`(?i)administratively OFF|asleep`), models.EventOff},
	{regexp.MustCompile(`(?i)on bypass`), models.EventBypass},
	{regexp.MustCompile(`(?i)overload`), models.EventOverload},
	{regexp.MustCompile(`(?i)trimming`), models.EventTrim},
	{regexp.MustCompile(`(?i)boosting`), models.EventBoost},
	{regexp.MustCompile(`(?i)data is stale|data.old`), models.EventDataOld},
}

// ParseEventText classifies a free-text upsmon message into an event type
// and extracts the UPS name when present.
//
// Deprecated: clients should post structured events with an explicit
// event_type. Text classification remains for legacy upsmon NOTIFYCMD
// hooks.
func ParseEventText(text string) (upsName string, eventType models.EventType, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", false
	}

	for _, tp := range textPatterns {
		if tp.pattern.MatchString(text) {
			eventType = tp.event
			ok = true
			break
		}
	}
	if !ok {
		return "", "", false
	}

	if m := upsNamePattern.FindStringSubmatch(text); m != nil {
		upsName = m[1]
		// upsmon reports name@host; only the name part matters here.
		if at := strings.IndexByte(upsName, '@'); at > 0 {
			upsName = upsName[:at]
		}
	}

	return upsName, eventType, true
}
