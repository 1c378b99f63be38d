package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"nexusdex/internal/events"
	"nexusdex/internal/pool"
)

// Store provides SQLite-based persistence for pool state and the event journal.
// It implements pool.Journal.
type Store struct {
	db    *sql.DB
	codec *events.Codec
}

var _ pool.Journal = (*Store)(nil)

// PoolRecord represents a pool stored in the database.
type PoolRecord struct {
	Address        string
	AssetA         string
	AssetB         string
	FeeNumerator   uint64
	FeeDenominator uint64
	ReserveA       string
	ReserveB       string
	Sequence       uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reserves parses the stored reserve pair.
func (p *PoolRecord) Reserves() (pool.Reserves, error) {
	a, err := uint256.FromDecimal(p.ReserveA)
	if err != nil {
		return pool.Reserves{}, fmt.Errorf("parsing reserve_a %q: %w", p.ReserveA, err)
	}
	b, err := uint256.FromDecimal(p.ReserveB)
	if err != nil {
		return pool.Reserves{}, fmt.Errorf("parsing reserve_b %q: %w", p.ReserveB, err)
	}
	return pool.Reserves{A: a, B: b}, nil
}

// EventRecord is a journaled pool event.
type EventRecord struct {
	ID        int64
	Kind      events.Kind
	Account   string
	Log       *events.Log
	CreatedAt time.Time
}

// NewStore creates a new SQLite store and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, codec: events.NewCodec()}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// migrate runs database schema migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pools (
			address TEXT PRIMARY KEY,
			asset_a TEXT NOT NULL,
			asset_b TEXT NOT NULL,
			fee_numerator INTEGER NOT NULL,
			fee_denominator INTEGER NOT NULL,
			reserve_a TEXT NOT NULL DEFAULT '0',
			reserve_b TEXT NOT NULL DEFAULT '0',
			sequence INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS pool_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pool TEXT NOT NULL,
			kind TEXT NOT NULL,
			topics BLOB NOT NULL,
			data BLOB NOT NULL,
			account TEXT NOT NULL DEFAULT '',
			sequence INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (pool) REFERENCES pools(address)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_events_sequence ON pool_events(pool, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_events_account ON pool_events(account)`,
		`CREATE TABLE IF NOT EXISTS system_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	log.Info().Msg("Database migrations completed")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSwap journals a swap and the resulting pool state in one transaction.
func (s *Store) RecordSwap(ctx context.Context, rec pool.SwapRecord) error {
	swapLog, err := s.codec.EncodeSwap(rec.Pool.Address, events.SwapEvent{
		Trader:    rec.Trader,
		AssetIn:   rec.AssetIn,
		AssetOut:  rec.AssetOut,
		AmountIn:  rec.AmountIn,
		AmountOut: rec.AmountOut,
	})
	if err != nil {
		return fmt.Errorf("encoding swap event: %w", err)
	}

	return s.record(ctx, rec.Pool, rec.Sequence, rec.Reserves, rec.Timestamp,
		journalEntry{kind: events.KindSwap, account: rec.Trader, log: swapLog})
}

// RecordDeposit journals a deposit and the resulting pool state in one transaction.
func (s *Store) RecordDeposit(ctx context.Context, rec pool.DepositRecord) error {
	depositLog, err := s.codec.EncodeLiquidityAdded(rec.Pool.Address, events.LiquidityAddedEvent{
		Provider: rec.Depositor,
		AmountA:  rec.AmountA,
		AmountB:  rec.AmountB,
	})
	if err != nil {
		return fmt.Errorf("encoding liquidity event: %w", err)
	}

	return s.record(ctx, rec.Pool, rec.Sequence, rec.Reserves, rec.Timestamp,
		journalEntry{kind: events.KindLiquidityAdded, account: rec.Depositor, log: depositLog})
}

type journalEntry struct {
	kind    events.Kind
	account common.Address
	log     *events.Log
}

// record writes entry, a trailing Sync event and the pool row atomically.
func (s *Store) record(ctx context.Context, info pool.PoolInfo, seq uint64, reserves pool.Reserves, at time.Time, entry journalEntry) error {
	syncLog, err := s.codec.EncodeSync(info.Address, events.SyncEvent{
		ReserveA: reserves.A,
		ReserveB: reserves.B,
	})
	if err != nil {
		return fmt.Errorf("encoding sync event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO pools (address, asset_a, asset_b, fee_numerator, fee_denominator, reserve_a, reserve_b, sequence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			reserve_a = excluded.reserve_a,
			reserve_b = excluded.reserve_b,
			sequence = excluded.sequence,
			updated_at = excluded.updated_at`,
		info.Address.Hex(), info.AssetA.Hex(), info.AssetB.Hex(),
		info.Fee.Numerator, info.Fee.Denominator,
		reserves.A.Dec(), reserves.B.Dec(), seq,
		at, at,
	); err != nil {
		return fmt.Errorf("upserting pool %s: %w", info.Address.Hex(), err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pool_events (pool, kind, topics, data, account, sequence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range []journalEntry{entry, {kind: events.KindSync, log: syncLog}} {
		account := ""
		if e.account != (common.Address{}) {
			account = e.account.Hex()
		}
		if _, err := stmt.ExecContext(ctx, info.Address.Hex(), string(e.kind),
			packTopics(e.log.Topics), e.log.Data, account, seq, at); err != nil {
			return fmt.Errorf("inserting %s event: %w", e.kind, err)
		}
	}

	return tx.Commit()
}

// LoadPool retrieves a pool by its address. It returns nil if the pool was never journaled.
func (s *Store) LoadPool(ctx context.Context, address common.Address) (*PoolRecord, error) {
	query := `SELECT address, asset_a, asset_b, fee_numerator, fee_denominator, reserve_a, reserve_b, sequence, created_at, updated_at
		FROM pools WHERE address = ?`

	var p PoolRecord
	err := s.db.QueryRowContext(ctx, query, address.Hex()).Scan(
		&p.Address, &p.AssetA, &p.AssetB, &p.FeeNumerator, &p.FeeDenominator,
		&p.ReserveA, &p.ReserveB, &p.Sequence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Events lists the journal of a pool after row afterID, oldest first.
func (s *Store) Events(ctx context.Context, address common.Address, afterID int64, limit int) ([]EventRecord, error) {
	query := `SELECT id, pool, kind, topics, data, account, sequence, created_at
		FROM pool_events
		WHERE pool = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, address.Hex(), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var (
			r       EventRecord
			poolHex string
			kind    string
			topics  []byte
			data    []byte
			seq     uint64
		)
		if err := rows.Scan(&r.ID, &poolHex, &kind, &topics, &data, &r.Account, &seq, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Kind = events.Kind(kind)
		r.Log = &events.Log{
			Address:  common.HexToAddress(poolHex),
			Topics:   unpackTopics(topics),
			Data:     data,
			Sequence: seq,
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// EventCount returns the number of journaled events for a pool.
func (s *Store) EventCount(ctx context.Context, address common.Address) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pool_events WHERE pool = ?", address.Hex()).Scan(&count)
	return count, err
}

// SetSystemState stores a key-value pair in system state.
func (s *Store) SetSystemState(ctx context.Context, key, value string) error {
	query := `INSERT INTO system_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now())
	return err
}

// GetSystemState retrieves a value from system state.
func (s *Store) GetSystemState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func packTopics(topics []common.Hash) []byte {
	out := make([]byte, 0, len(topics)*common.HashLength)
	for _, t := range topics {
		out = append(out, t.Bytes()...)
	}
	return out
}

func unpackTopics(b []byte) []common.Hash {
	topics := make([]common.Hash, 0, len(b)/common.HashLength)
	for i := 0; i+common.HashLength <= len(b); i += common.HashLength {
		topics = append(topics, common.BytesToHash(b[i:i+common.HashLength]))
	}
	return topics
}
