package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := OpenGateway(DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "eelog.db")}, zerolog.Nop(), NewPrinter("en"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func provisionedGateway(t *testing.T) *Gateway {
	t.Helper()
	g := openTestGateway(t)
	if !g.ProvisionSchema(context.Background()) {
		t.Fatalf("expected schema to be created")
	}
	return g
}

func testRecord(systemTime string, payload string) EventRecord {
	instant, _ := ParseSystemTime(systemTime)
	return EventRecord{
		Timestamp:  instant.Format(DisplayTimeLayout),
		Instant:    instant,
		SystemTime: systemTime,
		ProcessID:  4242,
		ThreadID:   17,
		SourceFile: "trace01.etl",
		Payload:    payload,
	}
}

// storedEvents reads the event table back, skipping event_time whose text
// form depends on the driver.
func storedEvents(t *testing.T, g *Gateway) []Event {
	t.Helper()
	var rows []Event
	err := g.db.Select("id", "system_time", "process_id", "thread_id", "log_file_name", "event_data").
		Order("id").Find(&rows).Error
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestGateway_ProvisionSchemaOnlyOnce(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	if g.Driver() != driverSQLite {
		t.Fatalf("unexpected driver %q", g.Driver())
	}
	if !g.ProvisionSchema(ctx) {
		t.Fatalf("expected first provisioning to succeed")
	}
	if g.ProvisionSchema(ctx) {
		t.Fatalf("expected second provisioning to fail")
	}
	// The failed attempt must not have touched the existing objects.
	files, err := g.ProcessedFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty registry, got %v", files)
	}
}

func TestGateway_ProcessedFilesBeforeProvisioning(t *testing.T) {
	g := openTestGateway(t)
	_, err := g.ProcessedFiles(context.Background())
	if !IsCode(err, ErrorCodeDB) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestGateway_DuplicateSystemTimeSkipsOnlyThatRecord(t *testing.T) {
	g := provisionedGateway(t)
	ctx := context.Background()

	if err := g.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.InsertRecord(ctx, testRecord("2019-05-21T10:15:30.123456700-03:00", "first")); err != nil {
		t.Fatal(err)
	}
	err := g.InsertRecord(ctx, testRecord("2019-05-21T10:15:30.123456700-03:00", "second"))
	if !IsCode(err, ErrorCodeDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	// The transaction is still usable after the rejected row.
	if err := g.InsertRecord(ctx, testRecord("2019-05-21T10:15:31.000000000-03:00", `say "hi"`)); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkProcessed(ctx, "trace01.etl"); err != nil {
		t.Fatal(err)
	}
	if err := g.Commit(); err != nil {
		t.Fatal(err)
	}

	rows := storedEvents(t, g)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != 1 || rows[1].ID != 2 {
		t.Fatalf("expected sequential ids, got %d and %d", rows[0].ID, rows[1].ID)
	}
	if rows[0].EventData != "first" || rows[1].EventData != `say "hi"` {
		t.Fatalf("unexpected payloads %q %q", rows[0].EventData, rows[1].EventData)
	}
	if rows[0].ProcessID != 4242 || rows[0].ThreadID != 17 || rows[0].LogFile != "trace01.etl" {
		t.Fatalf("unexpected row %+v", rows[0])
	}

	files, err := g.ProcessedFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "trace01.etl" {
		t.Fatalf("unexpected registry %v", files)
	}

	var reg ProcessedFile
	if err := g.db.Select("id", "log_file_name").First(&reg).Error; err != nil {
		t.Fatal(err)
	}
	if reg.ID != 1 || reg.Filename != "trace01.etl" {
		t.Fatalf("unexpected registry row %+v", reg)
	}
}

func TestGateway_RollbackDiscardsRecordsAndRegistry(t *testing.T) {
	g := provisionedGateway(t)
	ctx := context.Background()

	if err := g.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.InsertRecord(ctx, testRecord("2019-05-21T10:15:30.123456700-03:00", "x")); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkProcessed(ctx, "trace01.etl"); err != nil {
		t.Fatal(err)
	}
	if err := g.Rollback(); err != nil {
		t.Fatal(err)
	}

	if rows := storedEvents(t, g); len(rows) != 0 {
		t.Fatalf("expected no rows after rollback, got %d", len(rows))
	}
	files, err := g.ProcessedFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("expected empty registry after rollback, got %v", files)
	}
	// Rollback without a transaction is a no-op.
	if err := g.Rollback(); err != nil {
		t.Fatal(err)
	}
}

func TestGateway_RequiresTransaction(t *testing.T) {
	g := provisionedGateway(t)
	ctx := context.Background()

	if err := g.InsertRecord(ctx, testRecord("2019-05-21T10:15:30.123456700-03:00", "x")); err == nil {
		t.Fatalf("expected error inserting outside a transaction")
	}
	if err := g.MarkProcessed(ctx, "a.etl"); err == nil {
		t.Fatalf("expected error marking outside a transaction")
	}
	if err := g.Commit(); err == nil {
		t.Fatalf("expected error committing without a transaction")
	}
	if err := g.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Begin(ctx); err == nil {
		t.Fatalf("expected error opening a second transaction")
	}
	if g.ProvisionSchema(ctx) {
		t.Fatalf("expected provisioning to refuse while a transaction is open")
	}
}

func TestGateway_CanceledContext(t *testing.T) {
	g := provisionedGateway(t)
	if err := g.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.InsertRecord(ctx, testRecord("2019-05-21T10:15:30.123456700-03:00", "x"))
	if err == nil {
		t.Fatalf("expected error with canceled context")
	}
	if !isCanceled(err) && CodeOf(err) != ErrorCodeDB {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOpenGateway_ConnectionFailures(t *testing.T) {
	cases := []DatabaseConfig{
		{Driver: "oracle"},
		{Driver: "sqlite"},
		{Driver: "postgres", Host: "db01", SID: "eelog"},
		{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "missing", "dir", "eelog.db")},
	}
	for _, cfg := range cases {
		g, err := OpenGateway(cfg, zerolog.Nop(), nil)
		if err == nil {
			_ = g.Close()
			t.Fatalf("expected error for %+v", cfg)
		}
		if !IsCode(err, ErrorCodeConnection) {
			t.Fatalf("expected connection failure for %+v, got %v", cfg, err)
		}
		if e, _ := AsError(err); e.Op() != "openDB" {
			t.Fatalf("expected op openDB, got %q", e.Op())
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := DatabaseConfig{User: "eqtl", Password: "p@ss word", Host: "db01:5432", SID: "eelog", SSLMode: "disable"}.PostgresDSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dsn, "postgres://eqtl:") || !strings.Contains(dsn, "@db01:5432/eelog") || !strings.HasSuffix(dsn, "?sslmode=disable") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if strings.Contains(dsn, "p@ss word") {
		t.Fatalf("expected password to be escaped: %q", dsn)
	}

	_, err = DatabaseConfig{Password: "x"}.PostgresDSN()
	if err == nil || !strings.Contains(err.Error(), "user, host, service identifier") {
		t.Fatalf("expected missing credential list, got %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("x.db?mode=ro"); got != "x.db?mode=ro" {
		t.Fatalf("expected explicit query kept, got %q", got)
	}
	got := sqliteDSN("x.db")
	if !strings.Contains(got, "busy_timeout") || !strings.Contains(got, "journal_mode") {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestGateway_CloseTwice(t *testing.T) {
	g := openTestGateway(t)
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
}
