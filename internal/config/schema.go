// Package config loads the fusillade configuration file, applies defaults and
// environment overrides, and validates the result.
package config

import (
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultLogDir    = "./fusillade/log"
	DefaultSrcDir    = "./fusillade/src"
	DefaultDriver    = "mongo"
	DefaultDatabase  = "fusillade"
	DefaultCommand   = "artillery"
	DefaultSMTPPort  = 587
	DefaultSubject   = "{startDate} - {startTime}"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the root of the configuration file.
type Config struct {
	Fusillade FusilladeConfig `json:"fusillade" yaml:"fusillade"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Runner    RunnerConfig    `json:"runner" yaml:"runner"`
	Mailer    MailerConfig    `json:"mailer" yaml:"mailer"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// FusilladeConfig locates scripts and reports.
type FusilladeConfig struct {
	// Log is the report root holding the json and html directories.
	Log string `json:"log" yaml:"log"`
	// Src holds the test scripts.
	Src string `json:"src" yaml:"src"`
}

// StoreConfig selects and connects the artifact store.
type StoreConfig struct {
	Driver   string       `json:"driver" yaml:"driver"`
	URI      string       `json:"uri" yaml:"uri"`
	Database string       `json:"database" yaml:"database"`
	Options  StoreOptions `json:"options" yaml:"options"`
}

// StoreOptions tunes the store connection.
type StoreOptions struct {
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`
}

// RunnerConfig describes the external load generator.
type RunnerConfig struct {
	Command    string   `json:"command" yaml:"command"`
	RunArgs    []string `json:"runArgs,omitempty" yaml:"runArgs,omitempty"`
	ReportArgs []string `json:"reportArgs,omitempty" yaml:"reportArgs,omitempty"`
	Dir        string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Timeout bounds each invocation; zero means unbounded.
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// MailerConfig configures the digest email.
type MailerConfig struct {
	Transport TransportConfig `json:"transport" yaml:"transport"`
	From      string          `json:"from" yaml:"from"`
	To        []string        `json:"to" yaml:"to"`
	Cc        []string        `json:"cc,omitempty" yaml:"cc,omitempty"`
	Subject   string          `json:"subject" yaml:"subject"`
}

// TransportConfig is the SMTP relay.
type TransportConfig struct {
	Host               string     `json:"host" yaml:"host"`
	Port               int        `json:"port" yaml:"port"`
	Auth               AuthConfig `json:"auth" yaml:"auth"`
	InsecureSkipVerify bool       `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// AuthConfig holds SMTP credentials.
type AuthConfig struct {
	User string `json:"user" yaml:"user"`
	Pass string `json:"pass" yaml:"pass"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
