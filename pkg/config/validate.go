package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is a single configuration problem with its location.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Validate runs the semantic (JSON Schema) and domain phases over an
// already-decoded configuration.
func Validate(cfg *Config) []*ValidationError {
	var all []*ValidationError
	all = append(all, validateSemantic(cfg)...)
	all = append(all, validateDomain(cfg)...)
	return all
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from
// the Config struct using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Config{})
	s.ID = "https://github.com/ectop-dev/ectop/schemas/config-v0.json"
	s.Title = "ectop configuration v0"
	s.Description = "Schema for ectop YAML configuration files (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

func validateSemantic(cfg *Config) []*ValidationError {
	fail := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fail(fmt.Sprintf("marshal for schema validation: %v", err))
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return fail(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fail(fmt.Sprintf("unmarshal schema: %v", err))
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("config-v0.json", schemaDoc); err != nil {
		return fail(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("config-v0.json")
	if err != nil {
		return fail(fmt.Sprintf("compile schema: %v", err))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail(fmt.Sprintf("unmarshal document: %v", err))
	}
	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// validateDomain applies rules the schema cannot express.
func validateDomain(cfg *Config) []*ValidationError {
	var errs []*ValidationError

	if cfg.Host == "" {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "host",
			Message:  "host is required",
			Severity: "error",
		})
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "port",
			Message:  fmt.Sprintf("port %d out of range 1-65535", cfg.Port),
			Severity: "error",
		})
	}
	if cfg.RefreshSeconds <= 0 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "refresh_seconds",
			Message:  "refresh_seconds must be positive",
			Severity: "error",
		})
	}
	if cfg.TimeoutSeconds <= 0 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "timeout_seconds",
			Message:  "timeout_seconds must be positive",
			Severity: "error",
		})
	}
	if cfg.RefreshSeconds > 0 && cfg.TimeoutSeconds > cfg.RefreshSeconds*10 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "timeout_seconds",
			Message:  "timeout far exceeds the refresh interval; syncs will pile up",
			Severity: "warning",
		})
	}
	return errs
}

// HasErrors reports whether any entry is an error rather than a warning.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}
