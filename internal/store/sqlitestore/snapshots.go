package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kolmeter/internal/model"
)

const upsertSnapshotSQL = `
INSERT INTO tweet_snapshots(account_id, tweet_id, text, likes, reposts, replies, quotes, is_pinned,
  media_type, posted_at, observed_at, retweet_of, quote_of, reply_to)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(account_id, tweet_id) DO UPDATE SET
  text=excluded.text,
  likes=excluded.likes,
  reposts=excluded.reposts,
  replies=excluded.replies,
  quotes=excluded.quotes,
  is_pinned=excluded.is_pinned,
  media_type=excluded.media_type,
  posted_at=excluded.posted_at,
  observed_at=excluded.observed_at,
  retweet_of=excluded.retweet_of,
  quote_of=excluded.quote_of,
  reply_to=excluded.reply_to`

const selectSnapshotSQL = `SELECT account_id, tweet_id, text, likes, reposts, replies, quotes, is_pinned,
  media_type, posted_at, observed_at, retweet_of, quote_of, reply_to FROM tweet_snapshots`

// UpsertSnapshots writes one account's batch in a single transaction, keyed by
// (account_id, tweet_id) with full-row replace. The write ignores cancellation
// of ctx so a batch is never left half applied.
func (d *DB) UpsertSnapshots(ctx context.Context, snaps []model.TweetSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsertSnapshotSQL)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", model.ErrStoreWrite, err)
	}
	defer stmt.Close()
	for _, s := range snaps {
		if s.AccountID == "" || s.TweetID == "" {
			return fmt.Errorf("%w: snapshot without key (%q, %q)", model.ErrStoreWrite, s.AccountID, s.TweetID)
		}
		observed := s.ObservedAt
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			s.AccountID, s.TweetID, s.Text, s.Likes, s.Reposts, s.Replies, s.Quotes, boolInt(s.IsPinned),
			nullString(s.MediaType), unixMilli(s.PostedAt), observed.UnixMilli(),
			nullString(s.RetweetOf), nullString(s.QuoteOf), nullString(s.ReplyTo),
		); err != nil {
			return fmt.Errorf("%w: upsert %s/%s: %v", model.ErrStoreWrite, s.AccountID, s.TweetID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStoreWrite, err)
	}
	return nil
}

// ReadRecentSnapshots returns snapshots observed at or after since.
func (d *DB) ReadRecentSnapshots(ctx context.Context, since time.Time) ([]model.TweetSnapshot, error) {
	rows, err := d.sql.QueryContext(ctx, selectSnapshotSQL+` WHERE observed_at>=? ORDER BY account_id, tweet_id`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

// ReadAccountSnapshots returns every stored snapshot of one provider account.
func (d *DB) ReadAccountSnapshots(ctx context.Context, accountID string) ([]model.TweetSnapshot, error) {
	rows, err := d.sql.QueryContext(ctx, selectSnapshotSQL+` WHERE account_id=? ORDER BY tweet_id`, accountID)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

func scanSnapshots(rows *sql.Rows) ([]model.TweetSnapshot, error) {
	defer rows.Close()
	var out []model.TweetSnapshot
	for rows.Next() {
		var s model.TweetSnapshot
		var pinned int
		var media, rt, qt, rp sql.NullString
		var posted, observed sql.NullInt64
		if err := rows.Scan(&s.AccountID, &s.TweetID, &s.Text, &s.Likes, &s.Reposts, &s.Replies, &s.Quotes, &pinned,
			&media, &posted, &observed, &rt, &qt, &rp); err != nil {
			return nil, err
		}
		s.IsPinned = pinned == 1
		s.MediaType = media.String
		s.PostedAt = fromMilli(posted)
		s.ObservedAt = fromMilli(observed)
		s.RetweetOf, s.QuoteOf, s.ReplyTo = rt.String, qt.String, rp.String
		out = append(out, s)
	}
	return out, rows.Err()
}
