package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eelog-ingest/ingest"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

const example = `  eelog-ingest --ct --db_user XXXXXX --db_password XXXXXX --db_host localhost --db_SID XXXXXX
  eelog-ingest --il --db_user XXXXXX --db_password XXXXXX --db_host localhost:5432 --db_SID XXXXXX
  eelog-ingest --ct --il --db_driver sqlite --db_path eelog.db --input_dir D:\logs`

func main() {
	// Credentials usually live in a .env next to the binary; it is optional.
	_ = godotenv.Load()

	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eelog-ingest",
		Short: "Load .etl trace logs into the database",
		Long: `eelog-ingest converts the .etl trace files of a directory to XML with tracerpt
and stores every event in the eelog table. Files already recorded in
eelog_controle are skipped, so the command can run repeatedly from a scheduler.

Every flag can also be set in the YAML file given by --config or through an
EELOG_<FLAG> environment variable (EELOG_DB_PASSWORD, EELOG_INPUT_DIR, ...).`,
		Example:       example,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := resolveOptions(v, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	addFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, opts options) error {
	log, logFile := ingest.NewLogger(ingest.LogOptions{
		Level:     opts.LogLevel,
		File:      opts.LogFile,
		MaxSizeMB: opts.LogMaxSizeMB,
	})
	msgs := ingest.NewPrinter(opts.Lang)
	defer func() { _ = ingest.CloseLog(log, logFile, msgs) }()
	ingest.LogStartup(log, msgs, version)

	gw, err := ingest.OpenGateway(opts.Database, log, msgs)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	if opts.CreateTables {
		gw.ProvisionSchema(ctx)
	}
	if !opts.InsertLogs {
		return nil
	}

	conv := &ingest.TracerptConverter{Command: opts.Converter, WorkDir: opts.WorkDir, Strict: opts.StrictConverter}
	r, err := ingest.NewRunner(ingest.RunnerConfig{
		InputDir: opts.InputDir,
		ErrorDir: opts.ErrorDir,
		KeepXML:  opts.KeepXML,
	}, gw, conv, log, msgs)
	if err != nil {
		return err
	}
	_, err = r.RunOnce(ctx)
	return err
}
