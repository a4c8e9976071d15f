package ingest

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/text/message"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// recordSavepoint isolates each record insert so a rejected row leaves the
// file transaction usable (Postgres aborts the whole transaction otherwise).
const recordSavepoint = "eelog_record"

// Gateway owns the single database connection and the open file transaction.
// It is not safe for concurrent use.
type Gateway struct {
	db      *gorm.DB
	dialect dialect
	tx      *gorm.DB
	log     zerolog.Logger
	msgs    *message.Printer
}

// OpenGateway connects once; there is no pool and no reconnection. Any
// failure is a ConnectionFailure.
func OpenGateway(cfg DatabaseConfig, log zerolog.Logger, msgs *message.Printer) (*Gateway, error) {
	if msgs == nil {
		msgs = NewPrinter("")
	}
	log.Info().Str("op", "openDB").Msg(msgs.Sprintf(msgOpeningDB))

	d, dialector, err := dialectFor(cfg)
	if err != nil {
		err = WithOp(Wrap(err, ErrorCodeConnection, "configure database"), "openDB")
		log.Error().Str("op", "openDB").Msg(msgs.Sprintf(msgDBConnectFailed, err))
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		err = WithOp(Wrap(err, ErrorCodeConnection, "open database"), "openDB")
		log.Error().Str("op", "openDB").Msg(msgs.Sprintf(msgDBConnectFailed, err))
		return nil, err
	}
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		err = sqlDB.Ping()
	}
	if err != nil {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		err = WithOp(Wrap(err, ErrorCodeConnection, "ping database"), "openDB")
		log.Error().Str("op", "openDB").Msg(msgs.Sprintf(msgDBConnectFailed, err))
		return nil, err
	}

	log.Info().Str("op", "openDB").Str("driver", d.name).Msg(msgs.Sprintf(msgDBConnected))
	return &Gateway{db: db, dialect: d, log: log, msgs: msgs}, nil
}

// Driver returns the dialect name ("postgres" or "sqlite").
func (g *Gateway) Driver() string { return g.dialect.name }

func (g *Gateway) conn(ctx context.Context) *gorm.DB {
	if g.tx != nil {
		return g.tx.WithContext(ctx)
	}
	return g.db.WithContext(ctx)
}

// ProvisionSchema creates the event table, the registry table and the
// insertion routine in one transaction. It reports false when anything fails,
// including when the objects already exist.
func (g *Gateway) ProvisionSchema(ctx context.Context) bool {
	const op = "createTable"
	g.log.Info().Str("op", op).Msg(g.msgs.Sprintf(msgProvisioning, eventTable, registryTable, insertRoutine))

	var err error
	if g.tx != nil {
		err = New(ErrorCodeSchemaProvisioning, "a file transaction is open")
	} else {
		err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, stmt := range g.dialect.ddl {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			err = Wrap(err, ErrorCodeSchemaProvisioning, "provision schema")
		}
	}
	if err != nil {
		g.log.Error().Str("op", op).Msg(g.msgs.Sprintf(msgProvisionFailed, err))
		return false
	}
	g.log.Info().Str("op", op).Msg(g.msgs.Sprintf(msgProvisioned))
	return true
}

// ProcessedFiles returns every filename recorded in the registry.
func (g *Gateway) ProcessedFiles(ctx context.Context) ([]string, error) {
	var names []string
	if err := g.conn(ctx).Model(&ProcessedFile{}).Pluck("log_file_name", &names).Error; err != nil {
		return nil, classifyDBError(err, "list processed files")
	}
	return names, nil
}

// Begin opens the transaction covering one trace file.
func (g *Gateway) Begin(ctx context.Context) error {
	if g.tx != nil {
		return New(ErrorCodeDB, "transaction already open")
	}
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return classifyDBError(tx.Error, "begin transaction")
	}
	g.tx = tx
	return nil
}

// InsertRecord calls the stored insertion routine inside the open
// transaction. A SystemTime collision returns a DuplicateKey error and bad
// data a ConstraintViolation; either way the transaction stays usable.
func (g *Gateway) InsertRecord(ctx context.Context, rec EventRecord) error {
	if g.tx == nil {
		return New(ErrorCodeDB, "insert record: no open transaction")
	}
	tx := g.tx.WithContext(ctx)
	if err := tx.Exec("SAVEPOINT " + recordSavepoint).Error; err != nil {
		return classifyDBError(err, "savepoint")
	}
	insertErr := tx.Exec(g.dialect.insertCall,
		rec.Instant, rec.SystemTime, rec.ProcessID, rec.ThreadID, rec.SourceFile, rec.Payload).Error
	if insertErr != nil {
		if err := tx.Exec("ROLLBACK TO SAVEPOINT " + recordSavepoint).Error; err != nil {
			return classifyDBError(err, "rollback to savepoint")
		}
	}
	if err := tx.Exec("RELEASE SAVEPOINT " + recordSavepoint).Error; err != nil && insertErr == nil {
		return classifyDBError(err, "release savepoint")
	}
	return classifyDBError(insertErr, "insert record")
}

// MarkProcessed appends a registry row for filename inside the open transaction.
func (g *Gateway) MarkProcessed(ctx context.Context, filename string) error {
	if g.tx == nil {
		return New(ErrorCodeDB, "mark processed: no open transaction")
	}
	err := g.tx.WithContext(ctx).
		Exec("INSERT INTO "+registryTable+" (log_file_name) VALUES (?)", filename).Error
	return classifyDBError(err, "mark processed")
}

// Commit commits the open transaction.
func (g *Gateway) Commit() error {
	if g.tx == nil {
		return New(ErrorCodeDB, "commit: no open transaction")
	}
	err := g.tx.Commit().Error
	g.tx = nil
	return classifyDBError(err, "commit")
}

// Rollback discards the open transaction, if any.
func (g *Gateway) Rollback() error {
	if g.tx == nil {
		return nil
	}
	err := g.tx.Rollback().Error
	g.tx = nil
	return classifyDBError(err, "rollback")
}

// Close rolls back any open transaction and closes the connection.
func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	_ = g.Rollback()
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	g.db = nil
	if err == nil {
		g.log.Info().Str("op", "closeDB").Msg(g.msgs.Sprintf(msgDBClosed))
	}
	return err
}
