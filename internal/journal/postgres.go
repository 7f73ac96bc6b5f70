package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/journal/migrations"
)

type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPostgres(pool, logger), nil
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.SugaredLogger) *Postgres {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Migrate applies the embedded migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("journal migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO ledger_events (domain, name, body, recorded_at)
			VALUES ($1, $2, $3, $4)
		`, e.Domain, e.Name, []byte(e.Body), e.At)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to store event: %w", err)
		}
	}

	p.logger.Debugw("Stored batch of events", "count", len(entries))
	return nil
}

func (p *Postgres) List(ctx context.Context, domain string, afterSeq uint64, limit int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT seq, domain, name, body, recorded_at
		FROM ledger_events
		WHERE ($1 = '' OR domain = $1) AND seq > $2
		ORDER BY seq
		LIMIT $3
	`, domain, int64(afterSeq), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e    Entry
			seq  int64
			body []byte
		)
		if err := rows.Scan(&seq, &e.Domain, &e.Name, &body, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Seq = uint64(seq)
		e.Body = body
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordReceipt(ctx context.Context, domain string, r crosschain.Receipt) error {
	if r.EnvelopeID == "" {
		return nil
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO bridge_receipts (envelope_id, domain, from_account, to_account, recipient, amount, redirected)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		ON CONFLICT (envelope_id) DO NOTHING
	`, r.EnvelopeID, domain, r.From.Hex(), r.To.Hex(), r.Recipient.Hex(), r.Amount, r.Redirected)
	if err != nil {
		return fmt.Errorf("failed to store receipt: %w", err)
	}
	return nil
}

func (p *Postgres) Receipt(ctx context.Context, envelopeID string) (crosschain.Receipt, bool, error) {
	var (
		r                   crosschain.Receipt
		from, to, recipient string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT envelope_id, from_account, to_account, recipient, amount::text, redirected
		FROM bridge_receipts
		WHERE envelope_id = $1
	`, envelopeID).Scan(&r.EnvelopeID, &from, &to, &recipient, &r.Amount, &r.Redirected)
	if errors.Is(err, pgx.ErrNoRows) {
		return crosschain.Receipt{}, false, nil
	}
	if err != nil {
		return crosschain.Receipt{}, false, fmt.Errorf("failed to load receipt: %w", err)
	}
	r.From = common.HexToAddress(from)
	r.To = common.HexToAddress(to)
	r.Recipient = common.HexToAddress(recipient)
	return r, true, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}
