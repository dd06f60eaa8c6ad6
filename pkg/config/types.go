package config

import (
	"time"

	"github.com/openfroyo/externalcpi/pkg/telemetry"
)

// Config is the director side configuration of the CPI bridge.
type Config struct {
	Director DirectorConfig `yaml:"director"`

	// DefaultCPI names the CPI used when a caller does not pick one.
	// Optional when exactly one CPI is configured.
	DefaultCPI string `yaml:"default_cpi"`

	CPIs []CPIConfig `yaml:"cpis" validate:"required,min=1,unique=Name,dive"`

	Journal JournalConfig `yaml:"journal"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DirectorConfig identifies the director.
type DirectorConfig struct {
	Name string `yaml:"name" validate:"required"`

	// UUID is sent in every request context. When empty, the UUID kept in
	// the journal database is used, generated on first start.
	UUID string `yaml:"uuid" validate:"omitempty,uuid"`
}

// CPIConfig declares one named CPI executable.
type CPIConfig struct {
	Name     string `yaml:"name" validate:"required,excludesall=/ "`
	ExecPath string `yaml:"exec_path" validate:"required"`
}

// JournalConfig configures the SQLite call journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`

	// Retention prunes entries older than this on startup. Zero keeps everything.
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}
