package ingest

import (
	"context"
	stderrs "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/message"
)

// Store is the part of the Gateway the coordinator needs.
type Store interface {
	ProcessedFiles(ctx context.Context) ([]string, error)
	Begin(ctx context.Context) error
	InsertRecord(ctx context.Context, rec EventRecord) error
	MarkProcessed(ctx context.Context, filename string) error
	Commit() error
	Rollback() error
}

type RunnerConfig struct {
	// InputDir holds the *.etl files. Defaults to ".".
	InputDir string
	// ErrorDir receives files that could not be ingested. Empty leaves them in place.
	ErrorDir string
	// KeepXML leaves the intermediate XML on disk after extraction.
	KeepXML bool
}

// Runner drives ingestion: one file at a time, one transaction per file.
type Runner struct {
	cfg   RunnerConfig
	store Store
	conv  Converter
	log   zerolog.Logger
	msgs  *message.Printer
}

func NewRunner(cfg RunnerConfig, store Store, conv Converter, log zerolog.Logger, msgs *message.Printer) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if conv == nil {
		return nil, fmt.Errorf("converter is required")
	}
	if strings.TrimSpace(cfg.InputDir) == "" {
		cfg.InputDir = "."
	}
	if msgs == nil {
		msgs = NewPrinter("")
	}
	return &Runner{cfg: cfg, store: store, conv: conv, log: log, msgs: msgs}, nil
}

// RunOnce ingests every pending file in name order. A file that fails is
// rolled back and reported in the summary; the run carries on with the next
// one. Only a failure to resolve the pending set (or cancellation) returns
// an error.
func (r *Runner) RunOnce(ctx context.Context) (RunSummary, error) {
	start := time.Now()
	var run RunSummary

	pending, err := r.PendingFiles(ctx)
	if err != nil {
		r.log.Error().Str("op", "pendingFiles").Msg(r.msgs.Sprintf(msgRunFailed, err))
		return run, err
	}
	run.MissingFromDisk = pending.Missing
	for _, name := range pending.Missing {
		r.log.Warn().Str("op", "pendingFiles").Msg(r.msgs.Sprintf(msgMissingFile, name))
	}
	r.log.Info().Str("op", "pendingFiles").Msg(r.msgs.Sprintf(msgPendingFiles, pending.New))

	for _, name := range pending.New {
		if err := ctx.Err(); err != nil {
			run.Elapsed = time.Since(start)
			return run, err
		}
		fs, _ := r.IngestFile(ctx, name)
		run.add(fs)
	}

	run.Elapsed = time.Since(start)
	r.log.Info().Str("op", "runOnce").Msg(r.msgs.Sprintf(msgRunDone,
		run.Elapsed.Round(time.Millisecond), run.FilesIngested, run.FilesFailed, run.RecordsInserted, run.RecordsSkipped))
	return run, nil
}

// IngestFile converts name, inserts its records and registers it, all in one
// transaction. Bad records are skipped and logged; anything that prevents
// reading the whole document rolls the file back and leaves it unregistered.
func (r *Runner) IngestFile(ctx context.Context, name string) (FileSummary, error) {
	start := time.Now()
	sum := FileSummary{File: name}
	r.log.Info().Str("op", "ingestFile").Msg(r.msgs.Sprintf(msgProcessingFile, name))

	err := r.ingest(ctx, name, &sum)
	sum.Elapsed = time.Since(start)
	if err != nil {
		err = WithOp(err, "ingestFile")
		sum.Err = err
		r.log.Error().Str("op", "ingestFile").Str("code", CodeOf(err).String()).
			Msg(r.msgs.Sprintf(msgFileFailed, name, err))
		if !isCanceled(err) {
			r.quarantine(name)
		}
		return sum, err
	}

	r.log.Info().Str("op", "ingestFile").Msg(r.msgs.Sprintf(msgInserted,
		sum.Elapsed.Round(time.Millisecond), sum.Inserted, sum.Skipped))
	return sum, nil
}

func (r *Runner) ingest(ctx context.Context, name string, sum *FileSummary) (err error) {
	conv, err := r.conv.Convert(ctx, filepath.Join(r.cfg.InputDir, name))
	if conv.XMLPath != "" && !r.cfg.KeepXML {
		defer os.Remove(conv.XMLPath)
	}
	if err != nil {
		r.log.Error().Str("op", "convert").Str("stderr", strings.TrimSpace(conv.Stderr)).
			Msg(r.msgs.Sprintf(msgConverterFailed, err))
		return err
	}
	r.logConversion(conv)
	sum.Converted = conv.Elapsed

	f, err := os.Open(conv.XMLPath)
	if err != nil {
		return Wrap(err, ErrorCodeExtraction, "open converted xml")
	}
	defer f.Close()

	if err := r.store.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = r.store.Rollback()
		}
	}()

	x := NewExtractor(f, name)
	for x.Next() {
		out := x.Result()
		if out.Status == StatusExtracted {
			if out, err = r.insert(ctx, out); err != nil {
				return err
			}
		}
		sum.add(out)
		if out.Status.Skipped() {
			r.logSkipped(out)
		}
	}
	if err := x.Err(); err != nil {
		return err
	}

	if err := r.store.MarkProcessed(ctx, name); err != nil {
		return err
	}
	return r.store.Commit()
}

// insert stores one extracted record. Database rejections become a skipped
// outcome; only cancellation is returned as an error.
func (r *Runner) insert(ctx context.Context, out RecordOutcome) (RecordOutcome, error) {
	err := r.store.InsertRecord(ctx, out.Record)
	if err == nil {
		out.Status = StatusInserted
		r.log.Debug().Str("op", "insertRecord").Str("system_time", out.Record.SystemTime).Msg("inserted")
		return out, nil
	}
	if isCanceled(err) {
		return out, err
	}
	out.Err = err
	switch CodeOf(err) {
	case ErrorCodeDuplicateKey:
		out.Status = StatusSkippedDuplicate
	case ErrorCodeConstraintViolation:
		out.Status = StatusSkippedConstraint
	default:
		out.Status = StatusSkippedDatabase
	}
	return out, nil
}

func (r *Runner) logSkipped(out RecordOutcome) {
	if out.Status == StatusSkippedExtraction {
		ev := r.log.Warn().Str("op", "extractRecords").Int("node", out.Index)
		recordFields(ev, out.Record).Msg(r.msgs.Sprintf(msgExtractionFailed, out.Index, out.Err))
		return
	}
	ev := r.log.Error().Str("op", "insertRecord").Int("node", out.Index)
	recordFields(ev, out.Record).Msg(r.msgs.Sprintf(msgRecordSkipped, out.Status, out.Err))
}

func (r *Runner) logConversion(conv Conversion) {
	if s := strings.TrimSpace(conv.Stdout); s != "" {
		r.log.Debug().Str("op", "convert").Msg(r.msgs.Sprintf(msgConverterOutput, s))
	}
	if s := strings.TrimSpace(conv.Stderr); s != "" {
		r.log.Warn().Str("op", "convert").Msg(r.msgs.Sprintf(msgConverterOutput, s))
	}
	if conv.ExitErr != nil {
		r.log.Warn().Str("op", "convert").Msg(r.msgs.Sprintf(msgConverterExit, conv.ExitErr))
	}
	r.log.Info().Str("op", "convert").Msg(r.msgs.Sprintf(msgConverted, conv.Elapsed.Round(time.Millisecond)))
}

func (r *Runner) quarantine(name string) {
	if strings.TrimSpace(r.cfg.ErrorDir) == "" {
		return
	}
	src := filepath.Join(r.cfg.InputDir, name)
	dst, err := MoveFileToDir(src, r.cfg.ErrorDir)
	if err != nil {
		r.log.Warn().Str("op", "quarantine").Msg(r.msgs.Sprintf(msgMoveFailed, src, err))
		return
	}
	r.log.Info().Str("op", "quarantine").Msg(r.msgs.Sprintf(msgFileMoved, dst))
}

func isCanceled(err error) bool {
	return stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded)
}
