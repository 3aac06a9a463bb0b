package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertVerificationSQL = `INSERT INTO verifications (
        claim_ref,
        min_amount,
        from_address,
        since_ts,
        verified,
        via,
        tx_hash,
        tx_source,
        tx_amount_nano,
        error,
        reviewer,
        note,
        evidence_ref
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    ) RETURNING id, created_at;`

	listRecentVerificationsSQL = `SELECT
        id, claim_ref, min_amount, from_address, since_ts, verified, via,
        tx_hash, tx_source, tx_amount_nano, error, reviewer, note, evidence_ref,
        created_at
    FROM verifications
    ORDER BY created_at DESC
    LIMIT $1;`

	listPendingClaimsSQL = `SELECT DISTINCT ON (claim_ref)
        id, claim_ref, min_amount, from_address, since_ts, verified, via,
        tx_hash, tx_source, tx_amount_nano, error, reviewer, note, evidence_ref,
        created_at
    FROM verifications
    WHERE created_at >= $1
    ORDER BY claim_ref, created_at DESC;`

	dailyVerifiedTotalsSQL = `SELECT
        date_trunc('day', created_at) AS day,
        COUNT(*),
        COALESCE(SUM(tx_amount_nano), 0)::bigint
    FROM verifications
    WHERE verified
      AND created_at >= $1
      AND created_at < $2
    GROUP BY day
    ORDER BY day;`

	countVerificationsSQL = `SELECT COUNT(*) FROM verifications;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// VerificationStore defines operations for the append-only audit log.
type VerificationStore interface {
	InsertVerification(ctx context.Context, rec VerificationRecord) (VerificationRecord, error)
	ListRecentVerifications(ctx context.Context, limit int) ([]VerificationRecord, error)
	ListPendingClaims(ctx context.Context, since time.Time) ([]VerificationRecord, error)
	DailyVerifiedTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error)
	CountVerifications(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides Postgres-backed audit persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name identifies the store as an audit sink.
func (s *Store) Name() string { return "postgres" }

// Record implements the verifier's audit sink contract.
func (s *Store) Record(ctx context.Context, rec VerificationRecord) error {
	_, err := s.InsertVerification(ctx, rec)
	return err
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertVerification appends one audit row.
func (s *Store) InsertVerification(ctx context.Context, rec VerificationRecord) (VerificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return VerificationRecord{}, err
	}

	row := pool.QueryRow(ctx, insertVerificationSQL,
		rec.ClaimRef,
		rec.MinAmount.String(),
		rec.FromAddress,
		rec.SinceTS,
		rec.Verified,
		rec.Via,
		rec.TxHash,
		rec.TxSource,
		rec.TxAmountNano,
		rec.Error,
		rec.Reviewer,
		rec.Note,
		rec.EvidenceRef,
	)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return VerificationRecord{}, fmt.Errorf("insert verification: %w", err)
	}
	return rec, nil
}

// ListRecentVerifications lists the most recent audit rows.
func (s *Store) ListRecentVerifications(ctx context.Context, limit int) ([]VerificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentVerificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent verifications: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, limit)
}

// ListPendingClaims returns, for each claim seen since the cutoff, its latest
// record when that record is still unverified.
func (s *Store) ListPendingClaims(ctx context.Context, since time.Time) ([]VerificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPendingClaimsSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending claims: %w", queryErr)
	}
	defer rows.Close()

	records, err := collectRecords(rows, 0)
	if err != nil {
		return nil, err
	}

	pending := records[:0]
	for _, rec := range records {
		if !rec.Verified {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

// DailyVerifiedTotals aggregates verified donations per day.
func (s *Store) DailyVerifiedTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, dailyVerifiedTotalsSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("daily verified totals: %w", queryErr)
	}
	defer rows.Close()

	nanoPerTon := decimal.NewFromInt(1_000_000_000)

	totals := make([]DailyTotal, 0)
	for rows.Next() {
		var (
			total   DailyTotal
			sumNano int64
		)
		if err := rows.Scan(&total.Day, &total.Count, &sumNano); err != nil {
			return nil, err
		}
		total.AmountTon = decimal.NewFromInt(sumNano).Div(nanoPerTon)
		totals = append(totals, total)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return totals, nil
}

// CountVerifications counts stored audit rows.
func (s *Store) CountVerifications(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countVerificationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count verifications: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func collectRecords(rows pgx.Rows, hint int) ([]VerificationRecord, error) {
	records := make([]VerificationRecord, 0, hint)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanRecord(rows pgx.Rows) (VerificationRecord, error) {
	var (
		rec          VerificationRecord
		minAmountStr string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.ClaimRef,
		&minAmountStr,
		&rec.FromAddress,
		&rec.SinceTS,
		&rec.Verified,
		&rec.Via,
		&rec.TxHash,
		&rec.TxSource,
		&rec.TxAmountNano,
		&rec.Error,
		&rec.Reviewer,
		&rec.Note,
		&rec.EvidenceRef,
		&rec.CreatedAt,
	); err != nil {
		return VerificationRecord{}, err
	}

	minAmount, err := decimal.NewFromString(minAmountStr)
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("parse min amount: %w", err)
	}
	rec.MinAmount = minAmount

	return rec, nil
}
