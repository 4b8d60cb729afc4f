// internal/storage/candle/sqlite.go
package candle

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol    TEXT    NOT NULL,
	source    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	open      REAL    NOT NULL,
	high      REAL    NOT NULL,
	low       REAL    NOT NULL,
	close     REAL    NOT NULL,
	volume    REAL    NOT NULL,
	trades    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, source, timeframe, ts)
);`

const sqliteUpsert = `
INSERT INTO candles (symbol, source, timeframe, ts, open, high, low, close, volume, trades)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, source, timeframe, ts) DO UPDATE SET
    open=excluded.open,
    high=excluded.high,
    low=excluded.low,
    close=excluded.close,
    volume=excluded.volume,
    trades=excluded.trades`

// SQLiteStore keeps all series in one table of a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("sqlite path is required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, persistenceErr(err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistenceErr(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// EnsureSchema creates the candles table if missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return persistenceErr(fmt.Errorf("creating schema: %w", err))
	}
	return nil
}

// Coverage aggregates MIN/MAX/COUNT over one series.
func (s *SQLiteStore) Coverage(ctx context.Context, symbol, source string, interval core.Interval) (core.CoverageInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts), COUNT(*) FROM candles WHERE symbol = ? AND source = ? AND timeframe = ?`,
		symbol, source, string(interval))

	var minTS, maxTS sql.NullInt64
	var count int64
	if err := row.Scan(&minTS, &maxTS, &count); err != nil {
		return core.CoverageInfo{}, persistenceErr(fmt.Errorf("coverage query: %w", err))
	}
	return coverageFromRow(symbol, source, string(interval), minTS, maxTS, count), nil
}

// Summaries groups coverage by series.
func (s *SQLiteStore) Summaries(ctx context.Context, symbol string) ([]core.CoverageInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, source, timeframe, MIN(ts), MAX(ts), COUNT(*)
		FROM candles
		WHERE ? = '' OR symbol = ?
		GROUP BY symbol, source, timeframe
		ORDER BY symbol, source, timeframe`, symbol, symbol)
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("summaries query: %w", err))
	}
	defer rows.Close()

	var out []core.CoverageInfo
	for rows.Next() {
		var sym, src, tf string
		var minTS, maxTS sql.NullInt64
		var count int64
		if err := rows.Scan(&sym, &src, &tf, &minTS, &maxTS, &count); err != nil {
			return nil, persistenceErr(err)
		}
		out = append(out, coverageFromRow(sym, src, tf, minTS, maxTS, count))
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(err)
	}
	return out, nil
}

// Symbols lists distinct symbols.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("symbols query: %w", err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, persistenceErr(err)
		}
		out = append(out, sym)
	}
	return out, persistenceErr(rows.Err())
}

// Read returns candles in [from, to] ascending.
func (s *SQLiteStore) Read(ctx context.Context, symbol, source string, interval core.Interval, from, to time.Time) ([]core.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, trades
		FROM candles
		WHERE symbol = ? AND source = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		symbol, source, string(interval), truncate(from).Unix(), truncate(to).Unix())
	if err != nil {
		return nil, persistenceErr(fmt.Errorf("range query: %w", err))
	}
	defer rows.Close()

	var out []core.Candle
	for rows.Next() {
		c := core.Candle{Symbol: symbol, Source: source, Interval: interval}
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.TradeCount); err != nil {
			return nil, persistenceErr(err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(err)
	}
	return out, nil
}

// Write upserts candles in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, candles []core.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistenceErr(err)
	}
	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		_ = tx.Rollback()
		return 0, persistenceErr(err)
	}
	defer stmt.Close()

	count := 0
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Symbol, c.Source, string(c.Interval), truncate(c.Timestamp).Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount); err != nil {
			_ = tx.Rollback()
			return 0, persistenceErr(fmt.Errorf("upserting candle: %w", err))
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, persistenceErr(err)
	}

	s.logger.Debug("candles written",
		zap.String("path", s.path),
		zap.Int("count", count),
	)
	return count, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func coverageFromRow(symbol, source, timeframe string, minTS, maxTS sql.NullInt64, count int64) core.CoverageInfo {
	info := core.EmptyCoverage(symbol, source, core.Interval(timeframe))
	if count == 0 || !minTS.Valid || !maxTS.Valid {
		return info
	}
	earliest := time.Unix(minTS.Int64, 0).UTC()
	latest := time.Unix(maxTS.Int64, 0).UTC()
	info.Earliest = &earliest
	info.Latest = &latest
	info.Count = count
	return info
}
