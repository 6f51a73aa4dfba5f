package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wesleyorama2/fusillade/internal/runner"
)

//go:embed schema.json
var schemaJSON string

var configSchema = jsonschema.MustCompileString("schema.json", schemaJSON)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether an error was recorded for field.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// drop removes the errors recorded for section and its nested keys.
func (e *ValidationErrors) drop(section string) {
	kept := e.Errors[:0]
	for _, err := range e.Errors {
		if err.Field != section && !strings.HasPrefix(err.Field, section+".") {
			kept = append(kept, err)
		}
	}
	e.Errors = kept
}

// Validate checks the required keys against the embedded schema, then the
// values the schema cannot express.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateForCleanup is Validate without the mailer section, which cleanup
// never uses.
func (c *Config) ValidateForCleanup() error {
	return c.validate(false)
}

func (c *Config) validate(withMailer bool) error {
	errs := &ValidationErrors{}

	validateSchema(c, errs)
	if !withMailer {
		errs.drop("mailer")
	}
	validateRunner(&c.Runner, errs)
	if withMailer {
		validateMailer(&c.Mailer, errs)
	}
	validateLogging(&c.Logging, errs)

	if c.Store.Options.ConnectTimeout < 0 {
		errs.Add("store.options.connectTimeout", "must not be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSchema(c *Config, errs *ValidationErrors) {
	data, err := json.Marshal(c)
	if err != nil {
		errs.Add("", err.Error())
		return
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		errs.Add("", err.Error())
		return
	}

	err = configSchema.Validate(doc)
	if err == nil {
		return
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		errs.Add("", err.Error())
		return
	}
	addSchemaErrors(ve, errs)
}

// addSchemaErrors records the leaves of the schema error tree.
func addSchemaErrors(ve *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(ve.Causes) == 0 {
		errs.Add(fieldName(ve.InstanceLocation), ve.Message)
		return
	}
	for _, cause := range ve.Causes {
		addSchemaErrors(cause, errs)
	}
}

// fieldName turns a JSON pointer into a dotted key path.
func fieldName(pointer string) string {
	p := strings.TrimPrefix(strings.TrimPrefix(pointer, "#"), "/")
	return strings.ReplaceAll(p, "/", ".")
}

func validateRunner(r *RunnerConfig, errs *ValidationErrors) {
	if r.Timeout < 0 {
		errs.Add("runner.timeout", "must not be negative")
	}
	if len(r.RunArgs) > 0 && !mentions(r.RunArgs, runner.PlaceholderOutput) {
		errs.Add("runner.runArgs", fmt.Sprintf("must contain %s", runner.PlaceholderOutput))
	}
	if len(r.ReportArgs) > 0 {
		for _, p := range []string{runner.PlaceholderInput, runner.PlaceholderOutput} {
			if !mentions(r.ReportArgs, p) {
				errs.Add("runner.reportArgs", fmt.Sprintf("must contain %s", p))
			}
		}
	}
}

// mentions reports whether any argument contains placeholder, alone or
// embedded as in --output={output}.
func mentions(args []string, placeholder string) bool {
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

func validateMailer(m *MailerConfig, errs *ValidationErrors) {
	if len(m.To) == 0 {
		errs.Add("mailer.to", "at least one recipient is required")
	}
	for i, addr := range m.To {
		if _, err := mail.ParseAddress(addr); err != nil {
			errs.Add(fmt.Sprintf("mailer.to[%d]", i), fmt.Sprintf("invalid address %q", addr))
		}
	}
	for i, addr := range m.Cc {
		if _, err := mail.ParseAddress(addr); err != nil {
			errs.Add(fmt.Sprintf("mailer.cc[%d]", i), fmt.Sprintf("invalid address %q", addr))
		}
	}
	if m.From != "" && strings.Contains(m.From, "@") {
		if _, err := mail.ParseAddress(m.From); err != nil {
			errs.Add("mailer.from", fmt.Sprintf("invalid address %q", m.From))
		}
	}
}

func validateLogging(l *LoggingConfig, errs *ValidationErrors) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs.Add("logging.level", fmt.Sprintf("unknown level: %s", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs.Add("logging.format", fmt.Sprintf("unknown format: %s", l.Format))
	}
}
