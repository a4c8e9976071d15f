package ingest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	eventTable     = "eelog"
	registryTable  = "eelog_controle"
	insertRoutine  = "prc_insert_eelog"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// dialect holds everything that differs between backends: how to connect,
// the provisioning DDL and how the insertion routine is invoked.
type dialect struct {
	name       string
	ddl        []string
	insertCall string
}

var postgresDialect = dialect{
	name: driverPostgres,
	ddl: []string{
		`CREATE TABLE eelog (
			id BIGINT GENERATED ALWAYS AS IDENTITY,
			event_time TIMESTAMP(6),
			system_time VARCHAR(45) NOT NULL,
			process_id BIGINT,
			thread_id BIGINT,
			log_file_name VARCHAR(128),
			event_data TEXT,
			PRIMARY KEY (system_time)
		)`,
		`CREATE TABLE eelog_controle (
			id BIGINT GENERATED ALWAYS AS IDENTITY,
			inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			log_file_name VARCHAR(128)
		)`,
		`CREATE PROCEDURE prc_insert_eelog (
			p_event_time TIMESTAMP,
			p_system_time VARCHAR,
			p_process_id BIGINT,
			p_thread_id BIGINT,
			p_log_file_name VARCHAR,
			p_event_data TEXT
		)
		LANGUAGE plpgsql
		AS $$
		BEGIN
			INSERT INTO eelog (event_time, system_time, process_id, thread_id, log_file_name, event_data)
			VALUES (p_event_time, p_system_time, p_process_id, p_thread_id, p_log_file_name, p_event_data);
		END;
		$$`,
	},
	insertCall: `CALL prc_insert_eelog(?, ?, ?, ?, ?, ?)`,
}

// SQLite has no stored procedures; the routine is a view whose INSTEAD OF
// trigger performs the insert and assigns the identity value.
var sqliteDialect = dialect{
	name: driverSQLite,
	ddl: []string{
		`CREATE TABLE eelog (
			id INTEGER NOT NULL,
			event_time DATETIME,
			system_time VARCHAR(45) NOT NULL,
			process_id INTEGER,
			thread_id INTEGER,
			log_file_name VARCHAR(128),
			event_data TEXT,
			PRIMARY KEY (system_time)
		)`,
		`CREATE TABLE eelog_controle (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			inserted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			log_file_name VARCHAR(128)
		)`,
		`CREATE VIEW prc_insert_eelog AS
			SELECT event_time, system_time, process_id, thread_id, log_file_name, event_data FROM eelog`,
		`CREATE TRIGGER prc_insert_eelog_call INSTEAD OF INSERT ON prc_insert_eelog
		BEGIN
			INSERT INTO eelog (id, event_time, system_time, process_id, thread_id, log_file_name, event_data)
			VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM eelog),
				NEW.event_time, NEW.system_time, NEW.process_id, NEW.thread_id, NEW.log_file_name, NEW.event_data);
		END`,
	},
	insertCall: `INSERT INTO prc_insert_eelog (event_time, system_time, process_id, thread_id, log_file_name, event_data) VALUES (?, ?, ?, ?, ?, ?)`,
}

// dialectFor resolves the configured driver name and builds the gorm dialector.
func dialectFor(cfg DatabaseConfig) (dialect, gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", driverPostgres, "pg", "pgx":
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return dialect{}, nil, err
		}
		return postgresDialect, postgres.Open(dsn), nil
	case driverSQLite, "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			return dialect{}, nil, fmt.Errorf("sqlite driver requires a database path")
		}
		return sqliteDialect, sqlite.Open(sqliteDSN(cfg.Path)), nil
	default:
		return dialect{}, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// PostgresDSN composes user, password, host and service identifier into a
// connection URL. Host may carry a port ("db:5432").
func (c DatabaseConfig) PostgresDSN() (string, error) {
	var missing []string
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(c.SID) == "" {
		missing = append(missing, "service identifier")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing database credentials: %s", strings.Join(missing, ", "))
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   strings.TrimSpace(c.Host),
		Path:   "/" + strings.TrimSpace(c.SID),
	}
	if c.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	values := url.Values{}
	values.Add("_pragma", "busy_timeout(5000)")
	values.Add("_pragma", "journal_mode(WAL)")
	return path + "?" + values.Encode()
}
