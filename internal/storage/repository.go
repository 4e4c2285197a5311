package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"orderlens/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore keeps the dataset in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	loc    *time.Location
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) dbPath, migrates it and drops any rows
// left by a previous process. Dates are returned in loc.
func NewSQLiteStore(dbPath string, loc *time.Location, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps replace transactions from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("Dataset schema ready", "db_path", dbPath, "schema_version", version)

	s := &SQLiteStore{db: db, loc: loc, logger: logger}
	if err := s.Clear(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("clear stale dataset: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Replace swaps the stored dataset inside one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, ds Dataset) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = clearTx(ctx, tx); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (id, name, loaded_at, rows_read, rows_dropped) VALUES (?, ?, ?, ?, ?)`,
		ds.ID.String(), ds.Name, ds.LoadedAt.UTC().Format(timeLayout), ds.Rows, ds.Dropped); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO orders
		(dataset_id, seq, order_id, order_date_raw, parsed_date, total_owed_raw, parsed_amount, quantity_raw, parsed_quantity, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare order insert: %w", err)
	}
	defer stmt.Close()

	id := ds.ID.String()
	for i, o := range ds.Orders {
		attrs, mErr := json.Marshal(o.Attributes)
		if mErr != nil {
			err = fmt.Errorf("encode attributes of row %d: %w", i, mErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, id, i, o.OrderID, o.OrderDateRaw,
			o.ParsedDate.Format(timeLayout), o.TotalOwedRaw, o.ParsedAmount.String(),
			o.QuantityRaw, o.ParsedQuantity, string(attrs)); err != nil {
			return fmt.Errorf("insert order %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}

	s.logger.InfoContext(ctx, "Dataset stored in SQLite",
		"dataset_id", id,
		"orders", len(ds.Orders))
	return nil
}

// Current loads the stored dataset with its orders in upload order.
func (s *SQLiteStore) Current(ctx context.Context) (Dataset, error) {
	var (
		ds       Dataset
		rawID    string
		loadedAt string
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, name, loaded_at, rows_read, rows_dropped FROM datasets LIMIT 1`)
	if err := row.Scan(&rawID, &ds.Name, &loadedAt, &ds.Rows, &ds.Dropped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dataset{}, ErrNoDataset
		}
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Dataset{}, fmt.Errorf("parse dataset id: %w", err)
	}
	ds.ID = id
	if ds.LoadedAt, err = time.Parse(timeLayout, loadedAt); err != nil {
		return Dataset{}, fmt.Errorf("parse loaded_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT order_id, order_date_raw, parsed_date, total_owed_raw,
		parsed_amount, quantity_raw, parsed_quantity, attributes
		FROM orders WHERE dataset_id = ? ORDER BY seq`, rawID)
	if err != nil {
		return Dataset{}, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return Dataset{}, err
		}
		ds.Orders = append(ds.Orders, o)
	}
	if err := rows.Err(); err != nil {
		return Dataset{}, fmt.Errorf("iterate orders: %w", err)
	}
	return ds, nil
}

func (s *SQLiteStore) scanOrder(rows *sql.Rows) (core.Order, error) {
	var (
		o      core.Order
		date   string
		amount string
		attrs  string
	)
	if err := rows.Scan(&o.OrderID, &o.OrderDateRaw, &date, &o.TotalOwedRaw,
		&amount, &o.QuantityRaw, &o.ParsedQuantity, &attrs); err != nil {
		return o, fmt.Errorf("scan order: %w", err)
	}
	t, err := time.Parse(timeLayout, date)
	if err != nil {
		return o, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	o.ParsedDate = t.In(s.loc)
	if o.ParsedAmount, err = decimal.NewFromString(amount); err != nil {
		return o, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	if err := json.Unmarshal([]byte(attrs), &o.Attributes); err != nil {
		return o, fmt.Errorf("decode attributes: %w", err)
	}
	return o, nil
}

// Clear removes the stored dataset.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := clearTx(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func clearTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets`); err != nil {
		return fmt.Errorf("clear datasets: %w", err)
	}
	return nil
}
