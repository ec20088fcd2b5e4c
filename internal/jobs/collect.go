package jobs

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"kolmeter/internal/logging"
	"kolmeter/internal/metrics"
	"kolmeter/internal/model"
	"kolmeter/internal/reconcile"
	"kolmeter/internal/resolve"
)

// Resolver resolves one handle; *resolve.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (*resolve.Resolution, error)
}

// SnapshotWriter is the store side of collection.
type SnapshotWriter interface {
	UpsertSnapshots(ctx context.Context, snaps []model.TweetSnapshot) error
}

// AccountResult is the per-account line of a run summary.
type AccountResult struct {
	Handle       string              `json:"handle"`
	AccountID    string              `json:"accountId,omitempty"`
	Status       model.AccountStatus `json:"status"`
	Error        string              `json:"error,omitempty"`
	Tweets       int                 `json:"tweets"`
	Placeholders int                 `json:"placeholders"`
	Pinned       []string            `json:"pinned,omitempty"`
	Skipped      int                 `json:"skipped"`
}

// Collector processes tracked handles one at a time with a pause between
// accounts. It owns no state shared across accounts.
type Collector struct {
	resolver   Resolver
	reconciler *reconcile.Reconciler
	store      SnapshotWriter
	delay      time.Duration
	jitter     time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewCollector(resolver Resolver, store SnapshotWriter, delay, jitter time.Duration) *Collector {
	return &Collector{
		resolver:   resolver,
		reconciler: reconcile.New(),
		store:      store,
		delay:      delay,
		jitter:     jitter,
		sleep:      sleepCtx,
	}
}

// Collect resolves, reconciles and stores each handle in order. Account i+1
// starts only after account i's write finished. Cancellation is checked
// between accounts; accounts not started are reported as canceled.
func (c *Collector) Collect(ctx context.Context, handles []string) []AccountResult {
	results := make([]AccountResult, 0, len(handles))
	for i, h := range handles {
		if ctx.Err() != nil {
			return append(results, canceledFrom(handles[i:])...)
		}
		r := c.collectOne(ctx, h)
		results = append(results, r)
		metrics.IncAccountResult(string(r.Status))
		if i == len(handles)-1 {
			break
		}
		// Backpressure toward the provider, taken after failures too.
		if err := c.sleep(ctx, c.pause()); err != nil {
			return append(results, canceledFrom(handles[i+1:])...)
		}
	}
	return results
}

func (c *Collector) collectOne(ctx context.Context, handle string) AccountResult {
	start := time.Now()
	out := AccountResult{Handle: handle}
	fail := func(err error) AccountResult {
		out.Status = model.StatusFailed
		if errors.Is(err, context.Canceled) {
			out.Status = model.StatusCanceled
		}
		out.Error = err.Error()
		logging.Error("collect_account_failed", map[string]any{
			"handle": handle, "account_id": out.AccountID, "error": out.Error, "took_ms": time.Since(start).Milliseconds(),
		})
		return out
	}

	res, err := c.resolver.Resolve(ctx, handle)
	if err != nil {
		return fail(err)
	}
	out.Handle = res.Handle
	out.AccountID = res.AccountID
	out.Pinned = res.PinnedIDs.Sorted()
	out.Skipped = len(res.Skipped)
	if res.TimelineErr != nil {
		// Without the timeline, placeholders would overwrite stored pinned tweets.
		return fail(fmt.Errorf("timeline: %w", res.TimelineErr))
	}
	for _, s := range res.Skipped {
		logging.Debug("collect_entity_skipped", map[string]any{"handle": res.Handle, "entity": s.Entity, "reason": s.Reason})
	}

	snaps, st := c.reconciler.Reconcile(res.AccountID, res.Timeline, res.PinnedIDs)
	if err := c.store.UpsertSnapshots(ctx, snaps); err != nil {
		return fail(err)
	}
	metrics.SnapshotsWritten.Add(float64(len(snaps)))
	out.Status = model.StatusSuccess
	out.Tweets = st.Retained
	out.Placeholders = st.Placeholders
	logging.Info("collect_account_ok", map[string]any{
		"handle": res.Handle, "account_id": res.AccountID, "tweets": st.Retained, "placeholders": st.Placeholders,
		"duplicates": st.Duplicates, "pinned": out.Pinned, "took_ms": time.Since(start).Milliseconds(),
	})
	return out
}

// pause is the base delay plus a uniform jitter in [0, jitter).
func (c *Collector) pause() time.Duration {
	d := c.delay
	if c.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.jitter)))
	}
	return d
}

func canceledFrom(handles []string) []AccountResult {
	out := make([]AccountResult, 0, len(handles))
	for _, h := range handles {
		out = append(out, AccountResult{Handle: h, Status: model.StatusCanceled, Error: context.Canceled.Error()})
		metrics.IncAccountResult(string(model.StatusCanceled))
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
