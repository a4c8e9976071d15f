package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"eelog-ingest/ingest"
)

const envPrefix = "EELOG"

type options struct {
	CreateTables bool
	InsertLogs   bool
	Database     ingest.DatabaseConfig

	InputDir string
	WorkDir  string
	ErrorDir string

	Converter       string
	StrictConverter bool
	KeepXML         bool

	LogFile      string
	LogLevel     string
	LogMaxSizeMB int
	Lang         string
}

func addFlags(f *pflag.FlagSet) {
	f.Bool("ct", false, "create the eelog and eelog_controle tables and the prc_insert_eelog routine")
	f.Bool("il", false, "insert the .etl logs of the input directory into the database")
	f.String("db_user", "", "database user")
	f.String("db_password", "", "database user password")
	f.String("db_host", "", "database server address (host or host:port)")
	f.String("db_SID", "", "database name")
	f.String("db_sslmode", "", "postgres sslmode (disable, require, verify-full, ...)")
	f.String("db_driver", "postgres", "database driver: postgres or sqlite")
	f.String("db_path", "", "database file for the sqlite driver")

	f.String("config", "", "YAML config file")
	f.String("input_dir", ".", "directory holding the .etl files")
	f.String("work_dir", "", "directory for the intermediate XML files (default: OS temp dir)")
	f.String("error_dir", "", "move .etl files that fail as a whole to this directory")

	f.String("tracerpt", "tracerpt", "trace conversion command")
	f.Bool("strict_converter", false, "fail a file when the converter exits non-zero or writes to stderr")
	f.Bool("keep_xml", false, "keep the intermediate XML files")

	f.String("log_file", "eelog-ingest.log", "append-only log file (empty disables it)")
	f.String("log_level", "info", "log level: debug, info, warn, error")
	f.Int("log_max_size_mb", 0, "rotate the log file at this size (0: 100 MB)")
	f.String("lang", "", "message language, e.g. pt_BR or en (default: $LANG)")
}

// resolveOptions merges, from highest precedence: flags set on the command
// line, EELOG_* environment variables, the YAML config file and flag defaults.
func resolveOptions(v *viper.Viper, flags *pflag.FlagSet) (options, error) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return options{}, err
	}

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		fc, err := ingest.LoadConfig(path)
		if err != nil {
			return options{}, fmt.Errorf("load config: %w", err)
		}
		applyFileConfig(v, fc)
	}

	opts := options{
		CreateTables: v.GetBool("ct"),
		InsertLogs:   v.GetBool("il"),
		Database: ingest.DatabaseConfig{
			Driver:   strings.TrimSpace(v.GetString("db_driver")),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Host:     strings.TrimSpace(v.GetString("db_host")),
			SID:      strings.TrimSpace(v.GetString("db_sid")),
			SSLMode:  strings.TrimSpace(v.GetString("db_sslmode")),
			Path:     strings.TrimSpace(v.GetString("db_path")),
		},
		InputDir:        v.GetString("input_dir"),
		WorkDir:         v.GetString("work_dir"),
		ErrorDir:        v.GetString("error_dir"),
		Converter:       v.GetString("tracerpt"),
		StrictConverter: v.GetBool("strict_converter"),
		KeepXML:         v.GetBool("keep_xml"),
		LogFile:         v.GetString("log_file"),
		LogLevel:        v.GetString("log_level"),
		LogMaxSizeMB:    v.GetInt("log_max_size_mb"),
		Lang:            v.GetString("lang"),
	}
	if err := opts.validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

// applyFileConfig registers file values as defaults so env and flags still
// win. Empty values leave the flag default in place.
func applyFileConfig(v *viper.Viper, fc *ingest.FileConfig) {
	setString := func(key, val string) {
		if strings.TrimSpace(val) != "" {
			v.SetDefault(key, val)
		}
	}
	setString("db_driver", fc.Database.Driver)
	setString("db_user", fc.Database.User)
	setString("db_password", fc.Database.Password)
	setString("db_host", fc.Database.Host)
	setString("db_sid", fc.Database.SID)
	setString("db_sslmode", fc.Database.SSLMode)
	setString("db_path", fc.Database.Path)
	setString("input_dir", fc.InputDir)
	setString("work_dir", fc.WorkDir)
	setString("error_dir", fc.ErrorDir)
	setString("tracerpt", fc.Converter.Command)
	setString("log_file", fc.Log.File)
	setString("log_level", fc.Log.Level)
	setString("lang", fc.Log.Lang)

	if fc.Converter.Strict != nil {
		v.SetDefault("strict_converter", *fc.Converter.Strict)
	}
	if fc.Converter.KeepXML {
		v.SetDefault("keep_xml", true)
	}
	if fc.Log.MaxSizeMB > 0 {
		v.SetDefault("log_max_size_mb", fc.Log.MaxSizeMB)
	}
}

func (o options) validate() error {
	switch strings.ToLower(o.Database.Driver) {
	case "sqlite", "sqlite3":
		if o.Database.Path == "" {
			return fmt.Errorf("--db_path is required with the sqlite driver")
		}
		return nil
	}
	var missing []string
	if strings.TrimSpace(o.Database.User) == "" {
		missing = append(missing, "--db_user")
	}
	if o.Database.Password == "" {
		missing = append(missing, "--db_password")
	}
	if o.Database.Host == "" {
		missing = append(missing, "--db_host")
	}
	if o.Database.SID == "" {
		missing = append(missing, "--db_SID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required flags not set: %s", strings.Join(missing, ", "))
	}
	return nil
}
