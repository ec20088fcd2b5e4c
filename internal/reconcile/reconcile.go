// Package reconcile turns one account's fetched tweets and pinned-id set into
// the snapshot rows to store.
package reconcile

import (
	"time"

	"kolmeter/internal/logging"
	"kolmeter/internal/model"
)

// Reconciler is stateless apart from its clock.
type Reconciler struct {
	Now func() time.Time
}

func New() *Reconciler { return &Reconciler{Now: time.Now} }

// Stats describes one reconciliation.
type Stats struct {
	Fetched      int
	Duplicates   int
	Divergent    int
	Retained     int
	Pinned       int
	Placeholders int
}

// Reconcile dedupes fetched by tweet id (first occurrence wins), flags pinned
// tweets and adds a placeholder for every pinned id that was not fetched.
// Every retained tweet and every missing pinned id appears exactly once.
func (r *Reconciler) Reconcile(accountID string, fetched []model.Tweet, pinned model.IDSet) ([]model.TweetSnapshot, Stats) {
	now := r.now()
	st := Stats{Fetched: len(fetched)}
	seen := make(map[string]model.Tweet, len(fetched))
	out := make([]model.TweetSnapshot, 0, len(fetched)+len(pinned))
	for _, t := range fetched {
		if t.ID == "" {
			continue
		}
		if first, dup := seen[t.ID]; dup {
			st.Duplicates++
			if !sameCounters(first, t) {
				st.Divergent++
				logging.Warn("reconcile_divergent_duplicate", map[string]any{
					"account_id": accountID, "tweet_id": t.ID,
					"kept":    counters(first),
					"dropped": counters(t),
				})
			}
			continue
		}
		seen[t.ID] = t
		s := model.TweetSnapshot{
			AccountID:  accountID,
			TweetID:    t.ID,
			Text:       t.Text,
			Likes:      t.Likes,
			Reposts:    t.Reposts,
			Replies:    t.Replies,
			Quotes:     t.Quotes,
			IsPinned:   pinned.Has(t.ID),
			MediaType:  t.MediaType,
			PostedAt:   t.CreatedAt,
			ObservedAt: now,
			RetweetOf:  t.RetweetOf,
			QuoteOf:    t.QuoteOf,
			ReplyTo:    t.ReplyTo,
		}
		if s.IsPinned {
			st.Pinned++
		}
		out = append(out, s)
	}
	st.Retained = len(out)
	for _, id := range pinned.Sorted() {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, Placeholder(accountID, id, now))
		st.Placeholders++
		st.Pinned++
	}
	return out, st
}

// Placeholder builds the stand-in row for a pinned tweet outside the fetched window.
func Placeholder(accountID, tweetID string, observed time.Time) model.TweetSnapshot {
	return model.TweetSnapshot{
		AccountID:  accountID,
		TweetID:    tweetID,
		Text:       model.PinnedPlaceholderText,
		IsPinned:   true,
		ObservedAt: observed,
	}
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func sameCounters(a, b model.Tweet) bool {
	return a.Likes == b.Likes && a.Reposts == b.Reposts && a.Replies == b.Replies && a.Quotes == b.Quotes
}

func counters(t model.Tweet) []int { return []int{t.Likes, t.Reposts, t.Replies, t.Quotes} }
