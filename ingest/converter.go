package ingest

import (
	"bytes"
	"context"
	stderrs "errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Converter turns one binary trace container into an XML document on disk.
type Converter interface {
	Convert(ctx context.Context, etlPath string) (Conversion, error)
}

// Conversion describes one converter invocation. The caller owns XMLPath and
// removes it once the document has been consumed.
type Conversion struct {
	XMLPath string
	Stdout  string
	Stderr  string
	// ExitErr is the tool's exit error, kept even when it was tolerated.
	ExitErr error
	Elapsed time.Duration
}

// TracerptConverter shells out to tracerpt (or a compatible tool).
type TracerptConverter struct {
	Command string
	// WorkDir receives the intermediate XML; empty means os.TempDir().
	WorkDir string
	// Strict fails the conversion on a non-zero exit or any stderr output.
	Strict bool
}

func (c *TracerptConverter) Convert(ctx context.Context, etlPath string) (Conversion, error) {
	command := c.Command
	if strings.TrimSpace(command) == "" {
		command = "tracerpt"
	}
	if c.WorkDir != "" {
		if err := os.MkdirAll(c.WorkDir, 0o755); err != nil {
			return Conversion{}, Wrap(err, ErrorCodeConverter, "create work dir")
		}
	}

	// One document per call, never a shared fixed name.
	out, err := os.CreateTemp(c.WorkDir, "eelog-*.xml")
	if err != nil {
		return Conversion{}, Wrap(err, ErrorCodeConverter, "create intermediate xml")
	}
	xmlPath := out.Name()
	_ = out.Close()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, etlPath, "-o", xmlPath, "-of", "XML", "-lr", "-y")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	conv := Conversion{
		XMLPath: xmlPath,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}

	var exitErr *exec.ExitError
	if runErr != nil && !stderrs.As(runErr, &exitErr) {
		// The tool never ran; there is nothing to tolerate.
		_ = os.Remove(xmlPath)
		return conv, Wrapf(runErr, ErrorCodeConverter, "run %s", command)
	}
	conv.ExitErr = runErr

	if c.Strict {
		if runErr != nil {
			_ = os.Remove(xmlPath)
			return conv, Wrapf(runErr, ErrorCodeConverter, "%s exited with error", command)
		}
		if diag := strings.TrimSpace(conv.Stderr); diag != "" {
			_ = os.Remove(xmlPath)
			return conv, Newf(ErrorCodeConverter, "%s reported diagnostics: %s", command, diag)
		}
	}
	return conv, nil
}
