package ingest

import (
	"context"
	stderrs "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorCode classifies failures so callers can decide between skipping a
// record, skipping a file and aborting the run.
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeConnection is a failure to open the database session. Fatal.
	ErrorCodeConnection

	// ErrorCodeDuplicateKey is a SystemTime collision on the event table
	ErrorCodeDuplicateKey

	// ErrorCodeConstraintViolation is malformed data rejected by the database
	ErrorCodeConstraintViolation

	// ErrorCodeExtraction is a malformed event node, payload or timestamp
	ErrorCodeExtraction

	// ErrorCodeSchemaProvisioning is a failed (or repeated) schema creation
	ErrorCodeSchemaProvisioning

	// ErrorCodeConverter is a failed trace conversion
	ErrorCodeConverter

	// ErrorCodeDB is any other database error
	ErrorCodeDB
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeConnection:
		return "connection_failure"
	case ErrorCodeDuplicateKey:
		return "duplicate_key"
	case ErrorCodeConstraintViolation:
		return "constraint_violation"
	case ErrorCodeExtraction:
		return "extraction_failure"
	case ErrorCodeSchemaProvisioning:
		return "schema_provisioning_failure"
	case ErrorCodeConverter:
		return "converter_failure"
	case ErrorCodeDB:
		return "db_error"
	default:
		return "unknown"
	}
}

// Error carries a code, an optional operation label and the wrapped cause.
type Error struct {
	orig error
	msg  string
	code ErrorCode
	op   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WithOp attaches an operation label (copy-on-write). Foreign errors are
// returned unchanged.
func WithOp(err error, op string) error {
	if e, ok := AsError(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// AsError unwraps and returns (*Error, true) if err is one of ours
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// SQLSTATE codes mapped by classifyDBError.
const (
	pgErrUniqueViolation           = "23505"
	pgErrForeignKeyViolation       = "23503"
	pgErrNotNullViolation          = "23502"
	pgErrCheckViolation            = "23514"
	pgErrStringDataRightTruncation = "22001"
	pgErrInvalidTextRepresentation = "22P02"
	pgErrCharacterNotInRepertoire  = "22021"
	pgErrDatetimeFieldOverflow     = "22008"
)

// dbErrorCode maps a driver error onto DuplicateKey, ConstraintViolation or DB.
func dbErrorCode(err error) ErrorCode {
	if stderrs.Is(err, gorm.ErrDuplicatedKey) {
		return ErrorCodeDuplicateKey
	}
	if stderrs.Is(err, gorm.ErrForeignKeyViolated) {
		return ErrorCodeConstraintViolation
	}

	var pgErr *pgconn.PgError
	if stderrs.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return ErrorCodeDuplicateKey
		case pgErrForeignKeyViolation, pgErrNotNullViolation, pgErrCheckViolation,
			pgErrStringDataRightTruncation, pgErrInvalidTextRepresentation,
			pgErrCharacterNotInRepertoire, pgErrDatetimeFieldOverflow:
			return ErrorCodeConstraintViolation
		}
		return ErrorCodeDB
	}

	// SQLite reports constraint failures as text with an extended result code.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "unique constraint failed"),
		strings.Contains(s, "primary key must be unique"):
		return ErrorCodeDuplicateKey
	case strings.Contains(s, "not null constraint failed"),
		strings.Contains(s, "check constraint failed"),
		strings.Contains(s, "foreign key constraint failed"),
		strings.Contains(s, "datatype mismatch"):
		return ErrorCodeConstraintViolation
	}
	return ErrorCodeDB
}

// classifyDBError wraps a driver error with its mapped code. Cancellation is
// passed through untouched so callers can stop.
func classifyDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return err
	}
	return Wrap(err, dbErrorCode(err), msg)
}
