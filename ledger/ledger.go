// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/db"
	"github.com/danielhkuo/livevote/models"
)

var (
	ErrVoterNotFound       = errors.New("voter not found")
	ErrNotVerified         = errors.New("voter is not verified")
	ErrAlreadyVoted        = errors.New("voter has already voted")
	ErrCandidateNotFound   = errors.New("candidate not found")
	ErrElectionClosed      = errors.New("election is not open")
	ErrElectionNotFound    = errors.New("election not configured")
	ErrResultsNotPublished = errors.New("results not published yet")

	// ErrTransientStorage wraps storage and commit failures. No effect was
	// applied; the caller may retry.
	ErrTransientStorage = errors.New("transient storage failure")
)

// Ledger records ballots and administers the election
type Ledger struct {
	conn     *sql.DB
	rowLocks bool
	clock    clock.Clock
}

func New(conn *sql.DB, dbType string, clk clock.Clock) *Ledger {
	return &Ledger{conn: conn, rowLocks: db.SupportsRowLocks(dbType), clock: clk}
}

func (l *Ledger) forUpdate(q string) string {
	if l.rowLocks {
		return q + ` FOR UPDATE`
	}
	return q
}

func (l *Ledger) forShare(q string) string {
	if l.rowLocks {
		return q + ` FOR SHARE`
	}
	return q
}

// transient wraps anything that is not already a domain rejection
func transient(err error) error {
	for _, known := range []error{
		ErrVoterNotFound, ErrNotVerified, ErrAlreadyVoted,
		ErrCandidateNotFound, ErrElectionClosed, ErrElectionNotFound,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTransientStorage, err)
}

// CastVote records one ballot: the candidate's tally goes up by one and the
// voter is marked as having voted, both or neither. Of any number of
// concurrent calls for the same voter exactly one succeeds.
func (l *Ledger) CastVote(ctx context.Context, voterID, candidateID string) error {
	if candidateID == "" {
		return fmt.Errorf("%w: candidate_id is required", models.ErrValidation)
	}

	err := db.Atomic(ctx, l.conn, func(tx *sql.Tx) error {
		var status string
		var hasVoted bool
		err := tx.QueryRowContext(ctx, l.forUpdate(`
			SELECT verification_status, has_voted FROM voter WHERE id = $1`), voterID).Scan(&status, &hasVoted)
		if err == sql.ErrNoRows {
			return ErrVoterNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load voter: %w", err)
		}
		if status != models.StatusVerified {
			return ErrNotVerified
		}
		if hasVoted {
			return ErrAlreadyVoted
		}

		// No election row means no window has been configured; voting is open.
		// The clock is read after the election row so a stop that commits
		// first is always seen as already past.
		var start, end time.Time
		err = tx.QueryRowContext(ctx, l.forShare(`
			SELECT start_date, end_date FROM election WHERE id = 1`)).Scan(&start, &end)
		now := l.clock.Now()
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("failed to load election: %w", err)
		case !(models.Election{StartDate: start, EndDate: end}).IsOpen(now):
			return ErrElectionClosed
		}

		var exists bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM candidate WHERE id = $1)`, candidateID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to load candidate: %w", err)
		}
		if !exists {
			return ErrCandidateNotFound
		}

		// The guarded update decides the race: only one transaction can flip the flag
		res, err := tx.ExecContext(ctx, `
			UPDATE voter SET has_voted = TRUE, updated_at = $2
			WHERE id = $1 AND has_voted = FALSE
		`, voterID, now)
		if err != nil {
			return fmt.Errorf("failed to mark voter: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to mark voter: %w", err)
		}
		if n != 1 {
			return ErrAlreadyVoted
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE candidate SET vote_count = vote_count + 1 WHERE id = $1
		`, candidateID)
		if err != nil {
			return fmt.Errorf("failed to increment tally: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return ErrCandidateNotFound
		}
		return nil
	})
	if err != nil {
		return transient(err)
	}

	slog.Info("vote cast", "voter_id", voterID)
	return nil
}

// ResetStats reports what ResetElection changed
type ResetStats struct {
	CandidatesReset int64
	VotersReset     int64
}

// ResetElection zeroes every tally, clears every voter's has_voted flag and
// unpublishes results in a single transaction.
func (l *Ledger) ResetElection(ctx context.Context) (ResetStats, error) {
	var stats ResetStats
	err := db.Atomic(ctx, l.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE candidate SET vote_count = 0`)
		if err != nil {
			return fmt.Errorf("failed to reset tallies: %w", err)
		}
		stats.CandidatesReset, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `
			UPDATE voter SET has_voted = FALSE, updated_at = $1 WHERE has_voted = TRUE
		`, l.clock.Now())
		if err != nil {
			return fmt.Errorf("failed to reset voters: %w", err)
		}
		stats.VotersReset, _ = res.RowsAffected()

		_, err = tx.ExecContext(ctx, `
			UPDATE election SET results_published = FALSE, published_at = NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to unpublish results: %w", err)
		}
		return nil
	})
	if err != nil {
		return ResetStats{}, transient(err)
	}

	slog.Warn("election reset", "candidates", stats.CandidatesReset, "voters", stats.VotersReset)
	return stats, nil
}

// EmergencyStop closes the election now. Votes whose transaction starts
// after this commits are rejected with ErrElectionClosed.
func (l *Ledger) EmergencyStop(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := db.Atomic(ctx, l.conn, func(tx *sql.Tx) error {
		var id int
		err := tx.QueryRowContext(ctx, l.forUpdate(`SELECT id FROM election WHERE id = 1`)).Scan(&id)
		if err == sql.ErrNoRows {
			return ErrElectionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load election: %w", err)
		}

		// Read under the row lock: every vote that committed before this
		// stop saw an earlier time.
		now = l.clock.Now()
		res, err := tx.ExecContext(ctx, `UPDATE election SET end_date = $1 WHERE id = 1`, now)
		if err != nil {
			return fmt.Errorf("failed to stop election: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrElectionNotFound
		}
		return nil
	})
	if err != nil {
		return time.Time{}, transient(err)
	}

	slog.Warn("election stopped", "end_date", now)
	return now, nil
}

// Election returns the configured election
func (l *Ledger) Election(ctx context.Context) (models.Election, error) {
	var e models.Election
	var publishedAt sql.NullTime
	err := l.conn.QueryRowContext(ctx, `
		SELECT title, description, start_date, end_date, results_published, published_at
		FROM election WHERE id = 1
	`).Scan(&e.Title, &e.Description, &e.StartDate, &e.EndDate, &e.ResultsPublished, &publishedAt)
	if err == sql.ErrNoRows {
		return models.Election{}, ErrElectionNotFound
	}
	if err != nil {
		return models.Election{}, fmt.Errorf("failed to load election: %w", err)
	}
	if publishedAt.Valid {
		e.PublishedAt = &publishedAt.Time
	}
	return e, nil
}

// SetElection creates or replaces the election window
func (l *Ledger) SetElection(ctx context.Context, e models.Election) error {
	if !e.EndDate.After(e.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", models.ErrValidation)
	}
	return db.Atomic(ctx, l.conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM election WHERE id = 1`); err != nil {
			return fmt.Errorf("failed to clear election: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO election (id, title, description, start_date, end_date, results_published)
			VALUES (1, $1, $2, $3, $4, FALSE)
		`, e.Title, e.Description, e.StartDate, e.EndDate)
		if err != nil {
			return fmt.Errorf("failed to save election: %w", err)
		}
		return nil
	})
}

// PublishResults toggles public access to the tallies
func (l *Ledger) PublishResults(ctx context.Context, publish bool) (*time.Time, error) {
	var publishedAt *time.Time
	if publish {
		now := l.clock.Now()
		publishedAt = &now
	}

	res, err := l.conn.ExecContext(ctx, `
		UPDATE election SET results_published = $1, published_at = $2 WHERE id = 1
	`, publish, publishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to publish results: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrElectionNotFound
	}

	slog.Info("results publishing changed", "published", publish)
	return publishedAt, nil
}

// Tally returns every candidate's count, highest first. It ignores the
// publishing flag and is meant for administrators.
func (l *Ledger) Tally(ctx context.Context) ([]models.CandidateResult, int, error) {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT id, name, party, image_url, vote_count FROM candidate
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	results := []models.CandidateResult{}
	total := 0
	for rows.Next() {
		var r models.CandidateResult
		var image sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Party, &image, &r.Votes); err != nil {
			return nil, 0, fmt.Errorf("failed to scan candidate: %w", err)
		}
		r.ImageURL = image.String
		total += r.Votes
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read candidates: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Votes != results[j].Votes {
			return results[i].Votes > results[j].Votes
		}
		return results[i].Name < results[j].Name
	})
	return results, total, nil
}

// Results returns the public results once they are published
func (l *Ledger) Results(ctx context.Context) (models.ElectionResults, error) {
	e, err := l.Election(ctx)
	if err != nil {
		return models.ElectionResults{}, err
	}
	if !e.ResultsPublished {
		return models.ElectionResults{}, ErrResultsNotPublished
	}

	results, total, err := l.Tally(ctx)
	if err != nil {
		return models.ElectionResults{}, err
	}

	out := models.ElectionResults{
		PublishedAt: e.PublishedAt,
		TotalVotes:  total,
		Results:     results,
	}
	if len(results) > 0 {
		winner := results[0]
		out.Winner = &winner
	}
	return out, nil
}

// AddCandidate puts a candidate on the ballot with a zero tally
func (l *Ledger) AddCandidate(ctx context.Context, c models.Candidate) (models.Candidate, error) {
	if c.Name == "" || c.Party == "" {
		return models.Candidate{}, fmt.Errorf("%w: name and party are required", models.ErrValidation)
	}
	c.ID = auth.NewRecordID()
	c.CreatedAt = l.clock.Now()
	c.VoteCount = 0

	var image *string
	if c.ImageURL != "" {
		image = &c.ImageURL
	}
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO candidate (id, name, party, manifesto, image_url, vote_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
	`, c.ID, c.Name, c.Party, c.Manifesto, image, c.CreatedAt)
	if err != nil {
		return models.Candidate{}, transient(fmt.Errorf("failed to insert candidate: %w", err))
	}
	return c, nil
}

// Candidates lists the ballot without tallies
func (l *Ledger) Candidates(ctx context.Context) ([]models.Candidate, error) {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT id, name, party, manifesto, image_url, created_at FROM candidate ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := []models.Candidate{}
	for rows.Next() {
		var c models.Candidate
		var image sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Party, &c.Manifesto, &image, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.ImageURL = image.String
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
