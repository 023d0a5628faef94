// Package config loads and validates the switchd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks fatal configuration problems. A reload that produces
// one is discarded and the previous valid configuration keeps running.
var ErrConfiguration = errors.New("configuration error")

// Mapping rule kinds for LightingControl and InputControls entries.
const (
	RuleDefault     = "default"
	RuleSwitch      = "switch"
	RuleSwitchGroup = "switch group"
)

// Config represents the application configuration
type Config struct {
	General          GeneralConfig   `yaml:"General"`
	Location         LocationConfig  `yaml:"Location"`
	ShellyDevices    DevicesConfig   `yaml:"ShellyDevices"`
	Schedules        []ScheduleDef   `yaml:"Schedules"`
	LightingControl  []ControlRule   `yaml:"LightingControl"`
	InputControls    []InputRule     `yaml:"InputControls"`
	Files            FilesConfig     `yaml:"Files"`
	Email            EmailConfig     `yaml:"Email"`
	HeartbeatMonitor HeartbeatConfig `yaml:"HeartbeatMonitor"`
	Webhook          WebhookConfig   `yaml:"Webhook"`
}

// GeneralConfig contains application-wide settings
type GeneralConfig struct {
	AppName          string   `yaml:"AppName"`
	CheckInterval    Duration `yaml:"CheckInterval"`
	ShutdownTimeout  Duration `yaml:"ShutdownTimeout"`
	WebsiteBaseURL   string   `yaml:"WebsiteBaseURL"`
	WebsiteAccessKey string   `yaml:"WebsiteAccessKey"`
	WebsiteTimeout   Duration `yaml:"WebsiteTimeout"`
}

// LocationConfig contains the coordinates and timezone for sun calculations
type LocationConfig struct {
	Name          string  `yaml:"Name"`
	Timezone      string  `yaml:"Timezone"`
	Latitude      float64 `yaml:"Latitude"`
	Longitude     float64 `yaml:"Longitude"`
	GoogleMapsURL string  `yaml:"GoogleMapsURL"`
}

var mapsCoordPattern = regexp.MustCompile(`@?(-?\d+\.\d+),(-?\d+\.\d+)`)

// Coordinates returns the configured latitude/longitude. A GoogleMapsURL,
// when present, takes precedence over the explicit Latitude/Longitude values.
func (l *LocationConfig) Coordinates() (lat, lon float64, err error) {
	if l.GoogleMapsURL != "" {
		m := mapsCoordPattern.FindStringSubmatch(l.GoogleMapsURL)
		if m == nil {
			return 0, 0, fmt.Errorf("%w: no coordinates found in GoogleMapsURL %q", ErrConfiguration, l.GoogleMapsURL)
		}
		fmt.Sscanf(m[1], "%f", &lat)
		fmt.Sscanf(m[2], "%f", &lon)
		return lat, lon, nil
	}
	return l.Latitude, l.Longitude, nil
}

// DevicesConfig contains the Shelly device inventory and transport settings
type DevicesConfig struct {
	ResponseTimeout Duration `yaml:"ResponseTimeout"`
	RetryCount      int      `yaml:"RetryCount"`
	RetryDelay      Duration `yaml:"RetryDelay"`
	Devices         []Device `yaml:"Devices"`
}

// Device describes one physical (or simulated) Shelly device
type Device struct {
	Name     string      `yaml:"Name"`
	Model    string      `yaml:"Model"`
	Hostname string      `yaml:"Hostname"`
	Port     int         `yaml:"Port"`
	Simulate bool        `yaml:"Simulate"`
	Inputs   []Component `yaml:"Inputs"`
	Outputs  []Output    `yaml:"Outputs"`
}

// Component is a named input channel on a device
type Component struct {
	Name string `yaml:"Name"`
	ID   int    `yaml:"ID"`
}

// Output is a named switch output channel, optionally part of a group
type Output struct {
	Name  string `yaml:"Name"`
	Group string `yaml:"Group"`
	ID    int    `yaml:"ID"`
}

// ScheduleDef is a named ordered list of on/off events
type ScheduleDef struct {
	Name   string  `yaml:"Name"`
	Events []Event `yaml:"Events"`
}

// Event is one on/off window within a schedule
type Event struct {
	TurnOn       string      `yaml:"TurnOn"`
	TurnOff      string      `yaml:"TurnOff"`
	RandomOffset int         `yaml:"RandomOffset"` // max jitter magnitude, minutes
	DaysOfWeek   string      `yaml:"DaysOfWeek"`   // "All" or comma-separated Mon..Sun
	DatesOff     []DateRange `yaml:"DatesOff"`
}

// DateRange is an inclusive calendar date range during which an event is suppressed
type DateRange struct {
	StartDate Date `yaml:"StartDate"`
	EndDate   Date `yaml:"EndDate"`
}

// ControlRule maps a schedule to a switch, a switch group, or everything else
type ControlRule struct {
	Type     string `yaml:"Type"`
	Target   string `yaml:"Target"`
	Schedule string `yaml:"Schedule"`
}

// InputRule maps a physical input to a switch, a switch group, or everything else
type InputRule struct {
	Type   string `yaml:"Type"`
	Target string `yaml:"Target"`
	Input  string `yaml:"Input"`
}

// FilesConfig contains persistence and verbosity settings
type FilesConfig struct {
	StateDatabase              string `yaml:"StateDatabase"`
	MaxDaysSwitchChangeHistory int    `yaml:"MaxDaysSwitchChangeHistory"`
	ConsoleVerbosity           string `yaml:"ConsoleVerbosity"` // error, warning, summary, detailed, debug
	LogColors                  bool   `yaml:"LogColors"`
	LogJSON                    bool   `yaml:"LogJSON"`
}

// EmailConfig contains the SMTP notification settings
type EmailConfig struct {
	EnableEmail   bool   `yaml:"EnableEmail"`
	SendEmailsTo  string `yaml:"SendEmailsTo"`
	SMTPServer    string `yaml:"SMTPServer"`
	SMTPPort      int    `yaml:"SMTPPort"`
	SMTPUsername  string `yaml:"SMTPUsername"`
	SMTPPassword  string `yaml:"SMTPPassword"`
	SubjectPrefix string `yaml:"SubjectPrefix"`
}

// HeartbeatConfig contains the outbound liveness ping settings
type HeartbeatConfig struct {
	WebsiteURL       string   `yaml:"WebsiteURL"`
	HeartbeatTimeout Duration `yaml:"HeartbeatTimeout"`
}

// WebhookConfig contains the inbound HTTP server settings
type WebhookConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Host    string `yaml:"Host"`
	Port    int    `yaml:"Port"`
	Path    string `yaml:"Path"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Date is a calendar date (no time-of-day) parsed from "YYYY-MM-DD"
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// UnmarshalYAML implements yaml.Unmarshaler for Date
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	d.Year, d.Month, d.Day = t.Date()
	return nil
}

// String formats the date as YYYY-MM-DD
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// DateOf truncates t to its calendar date in t's location
func DateOf(t time.Time) Date {
	y, m, day := t.Date()
	return Date{Year: y, Month: m, Day: day}
}

// Before reports whether d is strictly earlier than other
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// Contains reports whether date falls inside the range, inclusive of both endpoints
func (r DateRange) Contains(date Date) bool {
	return !date.Before(r.StartDate) && !r.EndDate.Before(date)
}

// Load reads, expands, schema-validates, and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands, schema-validates, and decodes raw configuration bytes.
func Parse(data []byte) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	if err := validateSchema(expanded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.General.AppName == "" {
		cfg.General.AppName = "switchd"
	}
	if cfg.General.CheckInterval == 0 {
		cfg.General.CheckInterval = Duration(1 * time.Minute)
	}
	if cfg.General.ShutdownTimeout == 0 {
		cfg.General.ShutdownTimeout = Duration(5 * time.Second)
	}
	if cfg.General.WebsiteTimeout == 0 {
		cfg.General.WebsiteTimeout = Duration(5 * time.Second)
	}

	if cfg.Location.Timezone == "" {
		cfg.Location.Timezone = "UTC"
	}

	if cfg.ShellyDevices.ResponseTimeout == 0 {
		cfg.ShellyDevices.ResponseTimeout = Duration(10 * time.Second)
	}
	if cfg.ShellyDevices.RetryDelay == 0 {
		cfg.ShellyDevices.RetryDelay = Duration(2 * time.Second)
	}

	if cfg.Files.StateDatabase == "" {
		cfg.Files.StateDatabase = "./switchd.sqlite"
	}
	if cfg.Files.MaxDaysSwitchChangeHistory == 0 {
		cfg.Files.MaxDaysSwitchChangeHistory = 30
	}
	if cfg.Files.ConsoleVerbosity == "" {
		cfg.Files.ConsoleVerbosity = "summary"
	}

	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}

	if cfg.HeartbeatMonitor.HeartbeatTimeout == 0 {
		cfg.HeartbeatMonitor.HeartbeatTimeout = Duration(10 * time.Second)
	}

	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = "0.0.0.0"
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8787
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/shelly/webhook"
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		cfg.Webhook.Path = "/" + cfg.Webhook.Path
	}
}

// Outputs returns all configured switch outputs across devices, in declaration order.
func (cfg *Config) Outputs() []Output {
	var outs []Output
	for _, dev := range cfg.ShellyDevices.Devices {
		outs = append(outs, dev.Outputs...)
	}
	return outs
}

// Inputs returns all configured input channels across devices, in declaration order.
func (cfg *Config) Inputs() []Component {
	var ins []Component
	for _, dev := range cfg.ShellyDevices.Devices {
		ins = append(ins, dev.Inputs...)
	}
	return ins
}

// Groups returns group name -> member output names.
func (cfg *Config) Groups() map[string][]string {
	groups := make(map[string][]string)
	for _, out := range cfg.Outputs() {
		if out.Group != "" {
			groups[out.Group] = append(groups[out.Group], out.Name)
		}
	}
	return groups
}

// ScheduleByName returns the named schedule definition, or nil.
func (cfg *Config) ScheduleByName(name string) *ScheduleDef {
	for i := range cfg.Schedules {
		if cfg.Schedules[i].Name == name {
			return &cfg.Schedules[i]
		}
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
