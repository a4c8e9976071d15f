package ingest

import "time"

// EventRecord is one decoded trace event ready for insertion.
type EventRecord struct {
	// Timestamp is the display form, e.g. "21/05/19 10:15:30,123456".
	Timestamp string
	Instant   time.Time
	// SystemTime is the verbatim source attribute and the table's primary key.
	SystemTime string
	ProcessID  int64
	ThreadID   int64
	SourceFile string
	Payload    string
}

// Event maps a row of the event table. Rows are written through the stored
// insertion routine, never through gorm's Create.
type Event struct {
	ID         int64     `gorm:"column:id"`
	EventTime  time.Time `gorm:"column:event_time"`
	SystemTime string    `gorm:"column:system_time;primaryKey"`
	ProcessID  int64     `gorm:"column:process_id"`
	ThreadID   int64     `gorm:"column:thread_id"`
	LogFile    string    `gorm:"column:log_file_name"`
	EventData  string    `gorm:"column:event_data"`
}

func (Event) TableName() string { return eventTable }

// ProcessedFile is one row of the processed-file registry. Like Event it is
// read-only on the gorm side; MarkProcessed inserts with plain SQL so the
// database fills id and inserted_at.
type ProcessedFile struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	InsertedAt time.Time `gorm:"column:inserted_at"`
	Filename   string    `gorm:"column:log_file_name"`
}

func (ProcessedFile) TableName() string { return registryTable }
