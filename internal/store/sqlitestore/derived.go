package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kolmeter/internal/model"
)

// ReplaceInteractions swaps the interaction projection for a freshly derived
// one. The rows are a pure function of stored snapshots.
func (d *DB) ReplaceInteractions(ctx context.Context, in []model.Interaction) error {
	ctx = context.WithoutCancel(ctx)
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM interactions`); err != nil {
		return fmt.Errorf("%w: clear interactions: %v", model.ErrStoreWrite, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO interactions(account_id, tweet_id, official_tweet_id, kind, confidence, rule, at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(account_id, tweet_id) DO UPDATE SET official_tweet_id=excluded.official_tweet_id,
		  kind=excluded.kind, confidence=excluded.confidence, rule=excluded.rule, at=excluded.at`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", model.ErrStoreWrite, err)
	}
	defer stmt.Close()
	for _, it := range in {
		if _, err := stmt.ExecContext(ctx, it.AccountID, it.TweetID, nullString(it.OfficialTweetID),
			string(it.Kind), string(it.Confidence), it.Rule, it.At.UnixMilli()); err != nil {
			return fmt.Errorf("%w: insert interaction %s/%s: %v", model.ErrStoreWrite, it.AccountID, it.TweetID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStoreWrite, err)
	}
	return nil
}

// LoadInteractions returns the stored projection ordered by time.
func (d *DB) LoadInteractions(ctx context.Context) ([]model.Interaction, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT account_id, tweet_id, official_tweet_id, kind, confidence, rule, at
		FROM interactions ORDER BY at, account_id, tweet_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Interaction
	for rows.Next() {
		var it model.Interaction
		var official sql.NullString
		var kind, conf string
		var at sql.NullInt64
		if err := rows.Scan(&it.AccountID, &it.TweetID, &official, &kind, &conf, &it.Rule, &at); err != nil {
			return nil, err
		}
		it.OfficialTweetID = official.String
		it.Kind = model.InteractionKind(kind)
		it.Confidence = model.Confidence(conf)
		it.At = fromMilli(at)
		out = append(out, it)
	}
	return out, rows.Err()
}

// InteractionTotals counts stored interactions by kind.
func (d *DB) InteractionTotals(ctx context.Context) (map[model.InteractionKind]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT kind, COUNT(*) FROM interactions GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.InteractionKind]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[model.InteractionKind(k)] = n
	}
	return out, rows.Err()
}

// RunRecord is a persisted run summary.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Canceled   bool
	Summary    json.RawMessage
}

// SaveRun stores a run summary as JSON.
func (d *DB) SaveRun(ctx context.Context, id string, started, finished time.Time, canceled bool, summary any) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(context.WithoutCancel(ctx), `INSERT INTO collection_runs(id, started_at, finished_at, canceled, summary) VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET finished_at=excluded.finished_at, canceled=excluded.canceled, summary=excluded.summary`,
		id, started.UnixMilli(), finished.UnixMilli(), boolInt(canceled), string(b))
	if err != nil {
		return fmt.Errorf("%w: save run %s: %v", model.ErrStoreWrite, id, err)
	}
	return nil
}

// LastRun returns the most recently started run.
func (d *DB) LastRun(ctx context.Context) (RunRecord, error) {
	var r RunRecord
	var started, finished sql.NullInt64
	var canceled int
	var summary string
	err := d.sql.QueryRowContext(ctx, `SELECT id, started_at, finished_at, canceled, summary FROM collection_runs
		ORDER BY started_at DESC LIMIT 1`).Scan(&r.ID, &started, &finished, &canceled, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("no runs: %w", ErrNotFound)
	}
	if err != nil {
		return r, err
	}
	r.StartedAt, r.FinishedAt = fromMilli(started), fromMilli(finished)
	r.Canceled = canceled == 1
	r.Summary = json.RawMessage(summary)
	return r, nil
}
