package preferences

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps preferences in a SQLite database file
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageError("open", err).WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("ping", err).WithContext("path", path)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("preferences"),
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	store.logger.WithField("path", path).Debug("Preference store opened")
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return storageError("load migrations", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return storageError("create migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return storageError("create migrator", err)
	}

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("No new preference migrations to apply")
			return nil
		}
		return storageError("apply migrations", err)
	}

	s.logger.Debug("Preference migrations applied")
	return nil
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, fileName string) (*Preference, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT file_name, side, config, updated_at FROM column_preferences WHERE file_name = ?`,
		Key(fileName))

	pref, err := scanPreference(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageError("get", err).WithContext("file", fileName)
	}
	return pref, true, nil
}

// Save implements Store. An existing preference for the same file is replaced.
func (s *SQLiteStore) Save(ctx context.Context, pref *Preference) error {
	key := Key(pref.FileName)
	if key == "" {
		return errors.ValidationError(errors.CodeMissingField, "file_name", pref.FileName, nil)
	}

	config, err := json.Marshal(pref.Config)
	if err != nil {
		return storageError("encode", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO column_preferences (file_name, side, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			side = excluded.side,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		key, string(pref.Side), string(config), now, now)
	if err != nil {
		return storageError("save", err).WithContext("file", pref.FileName)
	}

	pref.UpdatedAt = now
	s.logger.WithField("file", key).Debug("Column preference saved")
	return nil
}

// Delete implements Store. Deleting an unknown file is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, fileName string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM column_preferences WHERE file_name = ?`, Key(fileName)); err != nil {
		return storageError("delete", err).WithContext("file", fileName)
	}
	return nil
}

// List implements Store, most recently updated first
func (s *SQLiteStore) List(ctx context.Context) ([]*Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name, side, config, updated_at FROM column_preferences ORDER BY updated_at DESC, file_name`)
	if err != nil {
		return nil, storageError("list", err)
	}
	defer rows.Close()

	var prefs []*Preference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, storageError("list", err)
		}
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list", err)
	}
	return prefs, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPreference(row scanner) (*Preference, error) {
	var (
		pref   Preference
		side   string
		config string
	)
	if err := row.Scan(&pref.FileName, &side, &config, &pref.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &pref.Config); err != nil {
		return nil, err
	}
	pref.Side = models.Side(side)
	return &pref, nil
}

func storageError(operation string, err error) *errors.ReconcilerError {
	return errors.InternalError(errors.CodeStorageError, "preferences "+operation, err)
}
