// Package tradestore persists the immutable trade log (SQLite).
package tradestore

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/veilbook/darkpool/internal/domain"
)

// Store 成交历史仓储
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）成交库
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("tradestore: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "tradestore: mkdir db dir")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "tradestore: open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS trades (
	id             TEXT PRIMARY KEY,
	maker_order_id TEXT NOT NULL,
	taker_order_id TEXT NOT NULL,
	token_id       TEXT NOT NULL,
	amount         TEXT NOT NULL,
	price          TEXT NOT NULL,
	ts             INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_token_ts ON trades(token_id, ts DESC);
`)
	return errors.Wrap(err, "tradestore: migrate")
}

// Save 落盘一笔成交；成交不可变，重复 ID 视为错误
func (s *Store) Save(t domain.Trade) error {
	_, err := s.db.Exec(
		`INSERT INTO trades (id, maker_order_id, taker_order_id, token_id, amount, price, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MakerOrderID, t.TakerOrderID, t.TokenID,
		t.Amount.String(), t.Price.String(), t.Timestamp.UnixNano(),
	)
	return errors.Wrapf(err, "tradestore: save trade %s", t.ID)
}

// Recent 按时间倒序返回某标的最近的成交
func (s *Store) Recent(tokenID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, maker_order_id, taker_order_id, token_id, amount, price, ts
		 FROM trades WHERE token_id = ? ORDER BY ts DESC LIMIT ?`,
		tokenID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "tradestore: query recent")
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var amount, price string
		var ts int64
		if err := rows.Scan(&t.ID, &t.MakerOrderID, &t.TakerOrderID, &t.TokenID, &amount, &price, &ts); err != nil {
			return nil, errors.Wrap(err, "tradestore: scan row")
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "tradestore: bad amount %q", amount)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(err, "tradestore: bad price %q", price)
		}
		t.Timestamp = time.Unix(0, ts)
		out = append(out, t)
	}
	return out, rows.Err()
}
