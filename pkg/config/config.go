package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/externalcpi/pkg/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report yaml key paths rather than Go field names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns a configuration with defaults for everything but the CPIs.
func Default() *Config {
	return &Config{
		Director: DirectorConfig{Name: "bosh"},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "director.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads and validates the config file at path. A relative journal
// path is resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Journal.Path != "" && cfg.Journal.Path != ":memory:" && !filepath.IsAbs(cfg.Journal.Path) {
		cfg.Journal.Path = filepath.Join(filepath.Dir(path), cfg.Journal.Path)
	}

	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DefaultCPI == "" && len(cfg.CPIs) == 1 {
		cfg.DefaultCPI = cfg.CPIs[0].Name
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for _, cpi := range c.CPIs {
		if !filepath.IsAbs(cpi.ExecPath) {
			return fmt.Errorf("%w: cpi %s: exec_path must be absolute, got %q", ErrInvalidConfig, cpi.Name, cpi.ExecPath)
		}
	}

	if c.DefaultCPI == "" {
		return fmt.Errorf("%w: default_cpi is required when more than one cpi is configured", ErrInvalidConfig)
	}
	if _, ok := c.CPI(c.DefaultCPI); !ok {
		return fmt.Errorf("%w: default_cpi %q is not a configured cpi", ErrInvalidConfig, c.DefaultCPI)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
	}

	return nil
}

// CPI returns the named CPI declaration.
func (c *Config) CPI(name string) (CPIConfig, bool) {
	for _, cpi := range c.CPIs {
		if cpi.Name == name {
			return cpi, true
		}
	}
	return CPIConfig{}, false
}

func describe(fe validator.FieldError) string {
	// drop the root struct name
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must have unique %s values", field, strings.ToLower(fe.Param()))
	case "uuid":
		return fmt.Sprintf("%s must be a uuid, got %q", field, fe.Value())
	case "excludesall":
		return fmt.Sprintf("%s must not contain spaces or slashes", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
