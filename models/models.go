package models

import (
	"time"
)

// Sample is a single poll result from the UPS. Known NUT metrics are typed
// fields; anything the device reports beyond those lands in ExtraNumeric or
// ExtraText so vendor-specific variables survive without loosening the type.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`

	UPSStatus string `json:"ups_status"`

	UPSLoad             *float64 `json:"ups_load,omitempty"`
	BatteryCharge       *float64 `json:"battery_charge,omitempty"`
	BatteryRuntime      *float64 `json:"battery_runtime,omitempty"`
	BatteryVoltage      *float64 `json:"battery_voltage,omitempty"`
	InputVoltage        *float64 `json:"input_voltage,omitempty"`
	OutputVoltage       *float64 `json:"output_voltage,omitempty"`
	UPSRealpower        *float64 `json:"ups_realpower,omitempty"`
	UPSRealpowerNominal *float64 `json:"ups_realpower_nominal,omitempty"`
	UPSTemperature      *float64 `json:"ups_temperature,omitempty"`

	ExtraNumeric map[string]float64 `json:"extra_numeric,omitempty"`
	ExtraText    map[string]string  `json:"extra_text,omitempty"`
}

// numericFieldPtr maps a known metric name to the typed field holding it.
func (s *Sample) numericFieldPtr(key string) **float64 {
	switch key {
	case "ups_load":
		return &s.UPSLoad
	case "battery_charge":
		return &s.BatteryCharge
	case "battery_runtime":
		return &s.BatteryRuntime
	case "battery_voltage":
		return &s.BatteryVoltage
	case "input_voltage":
		return &s.InputVoltage
	case "output_voltage":
		return &s.OutputVoltage
	case "ups_realpower":
		return &s.UPSRealpower
	case "ups_realpower_nominal":
		return &s.UPSRealpowerNominal
	case "ups_temperature":
		return &s.UPSTemperature
	}
	return nil
}

// SetNumeric stores a numeric metric under its underscored name, routing
// known metrics to typed fields and the rest to ExtraNumeric.
func (s *Sample) SetNumeric(key string, value float64) {
	if ptr := s.numericFieldPtr(key); ptr != nil {
		v := value
		*ptr = &v
		return
	}
	if s.ExtraNumeric == nil {
		s.ExtraNumeric = make(map[string]float64)
	}
	s.ExtraNumeric[key] = value
}

// SetText stores a non-numeric metric. ups_status is typed; everything else
// goes to ExtraText.
func (s *Sample) SetText(key, value string) {
	if key == "ups_status" {
		s.UPSStatus = value
		return
	}
	if s.ExtraText == nil {
		s.ExtraText = make(map[string]string)
	}
	s.ExtraText[key] = value
}

// GetNumeric returns a numeric metric by name, typed fields included.
func (s *Sample) GetNumeric(key string) (float64, bool) {
	if ptr := s.numericFieldPtr(key); ptr != nil {
		if *ptr == nil {
			return 0, false
		}
		return **ptr, true
	}
	v, ok := s.ExtraNumeric[key]
	return v, ok
}

// NumericFields returns every numeric metric on the sample keyed by its
// underscored name. The aggregator averages over this view.
func (s *Sample) NumericFields() map[string]float64 {
	out := make(map[string]float64, 9+len(s.ExtraNumeric))
	for _, key := range []string{
		"ups_load", "battery_charge", "battery_runtime", "battery_voltage",
		"input_voltage", "output_voltage", "ups_realpower",
		"ups_realpower_nominal", "ups_temperature",
	} {
		if v, ok := s.GetNumeric(key); ok {
			out[key] = v
		}
	}
	for k, v := range s.ExtraNumeric {
		out[k] = v
	}
	return out
}

// TextFields returns every non-numeric metric keyed by name.
func (s *Sample) TextFields() map[string]string {
	out := make(map[string]string, 1+len(s.ExtraText))
	if s.UPSStatus != "" {
		out["ups_status"] = s.UPSStatus
	}
	for k, v := range s.ExtraText {
		out[k] = v
	}
	return out
}

// AggregateRecord is one persisted row of the ups_dynamic_data table: the
// per-minute averages, plus hourly/daily power averages back-filled on
// boundary rows.
type AggregateRecord struct {
	ID          int64     `json:"id" db:"id"`
	TimestampTZ time.Time `json:"timestamp_tz" db:"timestamp_tz"`

	UPSStatus string `json:"ups_status" db:"ups_status"`

	UPSLoad             *float64 `json:"ups_load" db:"ups_load"`
	BatteryCharge       *float64 `json:"battery_charge" db:"battery_charge"`
	BatteryRuntime      *float64 `json:"battery_runtime" db:"battery_runtime"`
	BatteryVoltage      *float64 `json:"battery_voltage" db:"battery_voltage"`
	InputVoltage        *float64 `json:"input_voltage" db:"input_voltage"`
	OutputVoltage       *float64 `json:"output_voltage" db:"output_voltage"`
	UPSRealpower        *float64 `json:"ups_realpower" db:"ups_realpower"`
	UPSRealpowerNominal *float64 `json:"ups_realpower_nominal" db:"ups_realpower_nominal"`
	UPSTemperature      *float64 `json:"ups_temperature" db:"ups_temperature"`

	UPSRealpowerHrs  *float64 `json:"ups_realpower_hrs" db:"ups_realpower_hrs"`
	UPSRealpowerDays *float64 `json:"ups_realpower_days" db:"ups_realpower_days"`
}

// SetColumn assigns an averaged value onto the record by column name.
// Returns false when the record schema has no such column; callers warn and
// drop those fields.
func (r *AggregateRecord) SetColumn(key string, value float64) bool {
	switch key {
	case "ups_load":
		r.UPSLoad = &value
	case "battery_charge":
		r.BatteryCharge = &value
	case "battery_runtime":
		r.BatteryRuntime = &value
	case "battery_voltage":
		r.BatteryVoltage = &value
	case "input_voltage":
		r.InputVoltage = &value
	case "output_voltage":
		r.OutputVoltage = &value
	case "ups_realpower":
		r.UPSRealpower = &value
	case "ups_realpower_nominal":
		r.UPSRealpowerNominal = &value
	case "ups_temperature":
		r.UPSTemperature = &value
	default:
		return false
	}
	return true
}

// Fields returns the record's populated metrics as a flat map, the shape the
// broadcast channel and the latest-data endpoint emit.
func (r *AggregateRecord) Fields() map[string]interface{} {
	out := map[string]interface{}{
		"timestamp_tz": r.TimestampTZ,
	}
	if r.UPSStatus != "" {
		out["ups_status"] = r.UPSStatus
	}
	for key, ptr := range map[string]*float64{
		"ups_load":              r.UPSLoad,
		"battery_charge":        r.BatteryCharge,
		"battery_runtime":       r.BatteryRuntime,
		"battery_voltage":       r.BatteryVoltage,
		"input_voltage":         r.InputVoltage,
		"output_voltage":        r.OutputVoltage,
		"ups_realpower":         r.UPSRealpower,
		"ups_realpower_nominal": r.UPSRealpowerNominal,
		"ups_temperature":       r.UPSTemperature,
		"ups_realpower_hrs":     r.UPSRealpowerHrs,
		"ups_realpower_days":    r.UPSRealpowerDays,
	} {
		if ptr != nil {
			out[key] = *ptr
		}
	}
	return out
}

// Event is one UPS state-transition episode. EndTZ is nil while the episode
// is still open; starting a new event for the same UPS closes it.
type Event struct {
	ID           int64      `json:"id" db:"id"`
	UPSName      string     `json:"ups_name" db:"ups_name"`
	EventType    EventType  `json:"event_type" db:"event_type"`
	EventMessage string     `json:"event_message" db:"event_message"`
	TimestampTZ  time.Time  `json:"timestamp_tz" db:"timestamp_tz"`
	BeginTZ      time.Time  `json:"timestamp_tz_begin" db:"timestamp_tz_begin"`
	EndTZ        *time.Time `json:"timestamp_tz_end" db:"timestamp_tz_end"`
	SourceIP     string     `json:"source_ip" db:"source_ip"`
	Acknowledged bool       `json:"acknowledged" db:"acknowledged"`
}

// WebSocketMessage is the envelope sent to WebSocket clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// MailConfig holds one SMTP transport configuration. Password is stored
// encrypted; the secrets package decrypts it at send time.
type MailConfig struct {
	ID          int64  `json:"id" db:"id"`
	SMTPServer  string `json:"smtp_server" db:"smtp_server" validate:"required,hostname|ip"`
	SMTPPort    int    `json:"smtp_port" db:"smtp_port" validate:"required,min=1,max=65535"`
	Username    string `json:"username" db:"username"`
	Password    []byte `json:"-" db:"password"`
	Provider    string `json:"provider" db:"provider"`
	TLS         bool   `json:"tls" db:"tls"`
	TLSStartTLS bool   `json:"tls_starttls" db:"tls_starttls"`
	FromEmail   string `json:"from_email" db:"from_email" validate:"omitempty,email"`
	FromName    string `json:"from_name" db:"from_name"`
	ToEmail     string `json:"to_email" db:"to_email" validate:"required,email"`
	Enabled     bool   `json:"enabled" db:"enabled"`
	IsDefault   bool   `json:"is_default" db:"is_default"`
}

// NtfyConfig holds one push notification target.
type NtfyConfig struct {
	ID        int64  `json:"id" db:"id"`
	Server    string `json:"server" db:"server" validate:"required,url"`
	Topic     string `json:"topic" db:"topic" validate:"required"`
	UseAuth   bool   `json:"use_auth" db:"use_auth"`
	Username  string `json:"username" db:"username"`
	Password  []byte `json:"-" db:"password"`
	Priority  int    `json:"priority" db:"priority" validate:"min=1,max=5"`
	UseTags   bool   `json:"use_tags" db:"use_tags"`
	IsDefault bool   `json:"is_default" db:"is_default"`

	Notify map[EventType]bool `json:"notify" db:"-"`
}

// WebhookConfig holds one webhook target, including transport hardening and
// payload-signing options.
type WebhookConfig struct {
	ID                     int64  `json:"id" db:"id"`
	Name                   string `json:"name" db:"name" validate:"required"`
	URL                    string `json:"url" db:"url" validate:"required,url"`
	AuthType               string `json:"auth_type" db:"auth_type" validate:"oneof=none basic bearer"`
	AuthUsername           string `json:"auth_username" db:"auth_username"`
	AuthPassword           []byte `json:"-" db:"auth_password"`
	AuthToken              []byte `json:"-" db:"auth_token"`
	ContentType            string `json:"content_type" db:"content_type"`
	CustomHeaders          string `json:"custom_headers" db:"custom_headers"`
	IncludeUPSData         bool   `json:"include_ups_data" db:"include_ups_data"`
	VerifySSL              bool   `json:"verify_ssl" db:"verify_ssl"`
	SkipHostnameValidation bool   `json:"skip_hostname_validation" db:"skip_hostname_validation"`
	SigningEnabled         bool   `json:"signing_enabled" db:"signing_enabled"`
	SigningSecret          []byte `json:"-" db:"signing_secret"`
	SigningHeader          string `json:"signing_header" db:"signing_header"`
	SigningAlgorithm       string `json:"signing_algorithm" db:"signing_algorithm" validate:"omitempty,oneof=sha256 sha512"`
	MaxRetries             int    `json:"max_retries" db:"max_retries" validate:"min=0,max=10"`
	RetryTimeoutSecs       int    `json:"retry_timeout_secs" db:"retry_timeout_secs"`
	IsDefault              bool   `json:"is_default" db:"is_default"`

	Notify map[EventType]bool `json:"notify" db:"-"`
}

// NotificationSetting is the per-event-type email switch: enabled plus an
// optional reference to a specific mail configuration.
type NotificationSetting struct {
	ID        int64     `json:"id" db:"id"`
	EventType EventType `json:"event_type" db:"event_type"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	IDEmail   *int64    `json:"id_email" db:"id_email"`
}
