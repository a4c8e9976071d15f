package ingest

import (
	"os"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver   string `yaml:"driver"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// Host may include a port, e.g. "db01:5432".
	Host string `yaml:"host"`
	// SID is the service identifier, i.e. the database name.
	SID     string `yaml:"sid"`
	SSLMode string `yaml:"sslmode"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`
}

type ConverterConfig struct {
	// Command is the trace decoding tool, tracerpt by default.
	Command string `yaml:"command"`
	// Strict treats a non-zero exit status or any stderr output as a failed
	// conversion. Off by default: diagnostics are only logged.
	Strict  *bool `yaml:"strict"`
	KeepXML bool  `yaml:"keep_xml"`
}

type LogConfig struct {
	File      string `yaml:"file"`
	Level     string `yaml:"level"`
	Lang      string `yaml:"lang"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

type FileConfig struct {
	Database DatabaseConfig `yaml:"database"`

	// InputDir holds the *.etl files. Defaults to the working directory.
	InputDir string `yaml:"input_dir"`
	// WorkDir receives the intermediate XML files. Defaults to the OS temp dir.
	WorkDir string `yaml:"work_dir"`
	// ErrorDir, when set, receives trace files whose ingestion failed as a whole.
	ErrorDir string `yaml:"error_dir"`

	Converter ConverterConfig `yaml:"converter"`
	Log       LogConfig       `yaml:"log"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
