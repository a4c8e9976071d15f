package ingest

import "time"

// OutcomeStatus is the fate of one event node.
type OutcomeStatus int

const (
	// StatusExtracted is a record ready for insertion.
	StatusExtracted OutcomeStatus = iota
	StatusInserted
	StatusSkippedExtraction
	StatusSkippedDuplicate
	StatusSkippedConstraint
	StatusSkippedDatabase
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusExtracted:
		return "extracted"
	case StatusInserted:
		return "inserted"
	case StatusSkippedExtraction:
		return "skipped_extraction"
	case StatusSkippedDuplicate:
		return "skipped_duplicate"
	case StatusSkippedConstraint:
		return "skipped_constraint"
	case StatusSkippedDatabase:
		return "skipped_database"
	default:
		return "unknown"
	}
}

// Skipped reports whether the node did not end up as a row.
func (s OutcomeStatus) Skipped() bool { return s >= StatusSkippedExtraction }

// RecordOutcome is the per-node result. Record holds whatever was extracted,
// even when Err is set.
type RecordOutcome struct {
	Index  int
	Record EventRecord
	Status OutcomeStatus
	Err    error
}

// FileSummary aggregates the outcomes of one trace file.
type FileSummary struct {
	File      string
	Inserted  int
	Skipped   int
	Failures  []RecordOutcome
	Converted time.Duration
	Elapsed   time.Duration
	// Err is the file-level failure; nil when the file was committed.
	Err error
}

// Committed reports whether the file was registered as processed.
func (s FileSummary) Committed() bool { return s.Err == nil }

func (s *FileSummary) add(out RecordOutcome) {
	if out.Status.Skipped() {
		s.Skipped++
		s.Failures = append(s.Failures, out)
		return
	}
	if out.Status == StatusInserted {
		s.Inserted++
	}
}

// RunSummary aggregates one RunOnce pass.
type RunSummary struct {
	Files           []FileSummary
	FilesIngested   int
	FilesFailed     int
	RecordsInserted int
	RecordsSkipped  int
	// MissingFromDisk lists registry entries with no file in the input dir.
	MissingFromDisk []string
	Elapsed         time.Duration
}

func (s *RunSummary) add(fs FileSummary) {
	s.Files = append(s.Files, fs)
	if fs.Committed() {
		s.FilesIngested++
		s.RecordsInserted += fs.Inserted
		s.RecordsSkipped += fs.Skipped
		return
	}
	s.FilesFailed++
}
