package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/schema"
)

// ErrRunNotFound is returned when a run id is not in the history.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the run history.
type RunRecord struct {
	RunID          string
	CreatedAt      time.Time
	Source         string
	Technology     string
	ProfileName    string
	TraceStart     float64
	TraceEnd       float64
	TotalEnergy    float64
	Bursts         int
	LongBursts     int
	PeriodicGroups int
	Anomalies      int
}

// Store persists analysis runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the run history at path.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes a report and its bursts in one transaction and returns the
// run id used. Reports without a run id get a fresh UUID.
func (s *Store) SaveRun(ctx context.Context, report schema.BurstReport) (string, error) {
	runID := report.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	created := report.GeneratedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, source, technology, profile_name, trace_start, trace_end,
			total_energy, burst_count, long_bursts, periodic_groups, anomalies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		created.UTC().Format(time.RFC3339Nano),
		report.Source,
		string(report.Profile.Technology),
		report.Profile.Name,
		report.TraceStart,
		report.TraceEnd,
		report.Energy.Total,
		len(report.Analysis.Bursts),
		report.Analysis.LongBurstCount,
		report.Analysis.Periodicity.DistinctGroups,
		len(report.Anomalies),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run %s: %w", runID, err)
	}

	burstStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bursts (run_id, burst_index, begin_ts, end_ts, packet_count, category, periodic, long,
			payload, uplink_session, energy, active_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("preparing burst insert: %w", err)
	}
	defer func() { _ = burstStmt.Close() }()
	for _, b := range report.Analysis.Bursts {
		if _, err := burstStmt.ExecContext(ctx,
			runID, b.Index, b.Begin, b.End, b.PacketCount, string(b.Category),
			boolToInt(b.Periodic), boolToInt(b.Long), b.Payload, b.UplinkSession, b.Energy, b.ActiveTime,
		); err != nil {
			return "", fmt.Errorf("inserting burst %d: %w", b.Index, err)
		}
	}

	for _, c := range report.Analysis.Categories {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO category_summaries (run_id, category, burst_count, payload, energy, energy_pct, active_time, j_per_kb)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, string(c.Category), c.Count, c.Payload, c.Energy, c.EnergyPct, c.ActiveTime, c.JPerKB); err != nil {
			return "", fmt.Errorf("inserting category %s: %w", c.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run %s: %w", runID, err)
	}
	return runID, nil
}

// ListRuns returns the newest runs first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, created_at, COALESCE(source, ''), technology, COALESCE(profile_name, ''),
			trace_start, trace_end, total_energy, burst_count, long_bursts, periodic_groups, anomalies
		FROM runs
		ORDER BY created_at DESC, run_id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var created string
		if err := rows.Scan(&r.RunID, &created, &r.Source, &r.Technology, &r.ProfileName,
			&r.TraceStart, &r.TraceEnd, &r.TotalEnergy, &r.Bursts, &r.LongBursts, &r.PeriodicGroups, &r.Anomalies); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at of run %s: %w", r.RunID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return out, nil
}

// Bursts returns the stored bursts of a run in index order.
func (s *Store) Bursts(ctx context.Context, runID string) ([]burst.Burst, error) {
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT burst_index, begin_ts, end_ts, packet_count, category, periodic, long, payload,
			uplink_session, energy, active_time
		FROM bursts
		WHERE run_id = ?
		ORDER BY burst_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying bursts of %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]burst.Burst, 0)
	for rows.Next() {
		var b burst.Burst
		var category string
		var periodic, long int
		if err := rows.Scan(&b.Index, &b.Begin, &b.End, &b.PacketCount, &category, &periodic, &long,
			&b.Payload, &b.UplinkSession, &b.Energy, &b.ActiveTime); err != nil {
			return nil, fmt.Errorf("scanning burst row: %w", err)
		}
		b.Category = burst.Category(category)
		b.Periodic = periodic != 0
		b.Long = long != 0
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating burst rows: %w", err)
	}
	return out, nil
}

// CategoryEnergy sums stored burst energy per category across all runs of a
// technology, or every run when technology is empty.
func (s *Store) CategoryEnergy(ctx context.Context, technology string) (map[burst.Category]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.category, SUM(b.energy)
		FROM bursts b
		JOIN runs r ON r.run_id = b.run_id
		WHERE ? = '' OR r.technology = ?
		GROUP BY b.category
	`, technology, technology)
	if err != nil {
		return nil, fmt.Errorf("querying category energy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[burst.Category]float64)
	for rows.Next() {
		var category string
		var total float64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scanning category energy: %w", err)
		}
		out[burst.Category(category)] = total
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through foreign keys, its bursts and summaries.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *Store) ensureRun(ctx context.Context, runID string) error {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT run_id FROM runs WHERE run_id = ?", runID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("looking up run %s: %w", runID, err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
