package ingest

import (
	"encoding/hex"
	"encoding/xml"
	stderrs "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DisplayTimeLayout renders a record timestamp as DD/MM/YY HH:MM:SS,ffffff.
	DisplayTimeLayout = "02/01/06 15:04:05,000000"

	// SystemTime carries sub-microsecond digits and a UTC offset
	// ("...30.123456700-03:00"); the last 9 characters are dropped before parsing.
	systemTimeSuffixLen = 9
	systemTimeLayout    = "2006-01-02T15:04:05"
)

// ErrMissingField reports an event node without a required element or attribute.
var ErrMissingField = stderrs.New("missing field")

// eventNode is the subset of a converter <Event> element we read.
type eventNode struct {
	System          *systemNode `xml:"System"`
	BinaryEventData *string     `xml:"BinaryEventData"`
}

type systemNode struct {
	TimeCreated *timeCreatedNode `xml:"TimeCreated"`
	Execution   *executionNode   `xml:"Execution"`
}

type timeCreatedNode struct {
	SystemTime *string `xml:"SystemTime,attr"`
}

type executionNode struct {
	ProcessID *string `xml:"ProcessID,attr"`
	ThreadID  *string `xml:"ThreadID,attr"`
}

// Extractor walks a converter XML document once, yielding one outcome per
// top-level event node. It is not restartable.
//
//	x := NewExtractor(f, "trace.etl")
//	for x.Next() {
//		out := x.Result()
//		...
//	}
//	if err := x.Err(); err != nil { ... }
type Extractor struct {
	dec     *xml.Decoder
	source  string
	depth   int
	sawRoot bool
	index   int
	cur     RecordOutcome
	err     error
	done    bool
}

// NewExtractor reads r, which may be UTF-8 (with or without BOM) or UTF-16
// with a BOM. sourceFile is stamped on every record.
func NewExtractor(r io.Reader, sourceFile string) *Extractor {
	dec := xml.NewDecoder(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	dec.CharsetReader = charsetReader
	return &Extractor{dec: dec, source: sourceFile}
}

// charsetReader honours the encoding declaration. UTF-16 input has already
// been transcoded by the BOM override, so it passes through.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(label)), "utf-16") {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported xml encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Next advances to the next event node. It returns false at the end of the
// document or on a document-level error, which Err then reports.
func (x *Extractor) Next() bool {
	if x.done {
		return false
	}
	for {
		tok, err := x.dec.Token()
		if err == io.EOF {
			x.done = true
			if !x.sawRoot {
				x.err = New(ErrorCodeExtraction, "xml document has no root element")
			} else if x.depth != 0 {
				x.err = New(ErrorCodeExtraction, "xml document ended inside the root element")
			}
			return false
		}
		if err != nil {
			x.done = true
			x.err = Wrap(err, ErrorCodeExtraction, "read xml")
			return false
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if x.depth == 0 {
				x.depth = 1
				x.sawRoot = true
				continue
			}
			var node eventNode
			if err := x.dec.DecodeElement(&node, &t); err != nil {
				x.done = true
				x.err = Wrapf(err, ErrorCodeExtraction, "decode event node %d", x.index)
				return false
			}
			x.cur = x.outcome(node)
			x.index++
			return true
		case xml.EndElement:
			x.depth--
		}
	}
}

// Result returns the outcome produced by the last successful Next.
func (x *Extractor) Result() RecordOutcome { return x.cur }

// Err returns the document-level error, if any. Per-node failures are
// reported through Result instead.
func (x *Extractor) Err() error { return x.err }

func (x *Extractor) outcome(node eventNode) RecordOutcome {
	rec, err := buildRecord(node, x.source)
	out := RecordOutcome{Index: x.index, Record: rec, Status: StatusExtracted}
	if err != nil {
		out.Status = StatusSkippedExtraction
		out.Err = Wrap(err, ErrorCodeExtraction, "extract event")
	}
	return out
}

// buildRecord fills the record field by field; on error the fields read so
// far are returned alongside it.
func buildRecord(node eventNode, source string) (EventRecord, error) {
	rec := EventRecord{SourceFile: source}
	if node.System == nil {
		return rec, fmt.Errorf("%w: System", ErrMissingField)
	}
	if node.System.TimeCreated == nil || node.System.TimeCreated.SystemTime == nil {
		return rec, fmt.Errorf("%w: TimeCreated/@SystemTime", ErrMissingField)
	}
	rec.SystemTime = *node.System.TimeCreated.SystemTime

	if node.System.Execution == nil {
		return rec, fmt.Errorf("%w: Execution", ErrMissingField)
	}
	pid, err := parseIDAttr("ProcessID", node.System.Execution.ProcessID)
	if err != nil {
		return rec, err
	}
	rec.ProcessID = pid
	tid, err := parseIDAttr("ThreadID", node.System.Execution.ThreadID)
	if err != nil {
		return rec, err
	}
	rec.ThreadID = tid

	instant, err := ParseSystemTime(rec.SystemTime)
	if err != nil {
		return rec, err
	}
	rec.Instant = instant
	rec.Timestamp = instant.Format(DisplayTimeLayout)

	if node.BinaryEventData == nil {
		return rec, fmt.Errorf("%w: BinaryEventData", ErrMissingField)
	}
	payload, err := DecodePayload(*node.BinaryEventData)
	if err != nil {
		return rec, err
	}
	rec.Payload = payload
	return rec, nil
}

func parseIDAttr(name string, v *string) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: Execution/@%s", ErrMissingField, name)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, *v, err)
	}
	return n, nil
}

// ParseSystemTime drops the sub-microsecond digits and offset suffix and
// parses the remaining "YYYY-MM-DDTHH:MM:SS.ffffff".
func ParseSystemTime(s string) (time.Time, error) {
	if len(s) <= systemTimeSuffixLen {
		return time.Time{}, fmt.Errorf("invalid SystemTime %q: too short", s)
	}
	t, err := time.Parse(systemTimeLayout, s[:len(s)-systemTimeSuffixLen])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid SystemTime %q: %w", s, err)
	}
	return t, nil
}

// DecodePayload decodes hex event data as UTF-8 text and swaps single quotes
// for double quotes. Whitespace between hex digits is ignored.
func DecodePayload(hexText string) (string, error) {
	clean := strings.Join(strings.Fields(hexText), "")
	if clean == "" {
		return "", fmt.Errorf("%w: BinaryEventData is empty", ErrMissingField)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return "", fmt.Errorf("invalid payload hex: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("payload is not valid UTF-8")
	}
	return strings.ReplaceAll(string(b), "'", `"`), nil
}
