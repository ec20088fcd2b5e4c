package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kolmeter/internal/config"
	"kolmeter/internal/logging"
	"kolmeter/internal/metrics"
	"kolmeter/internal/model"
	"kolmeter/internal/provider"
	"kolmeter/internal/resolve"
	"kolmeter/internal/scoring"
	"kolmeter/internal/util"
)

// Store is everything a run needs from persistence; *sqlitestore.DB satisfies it.
type Store interface {
	SnapshotWriter
	ScoreStore
	resolve.AccountRecorder
	AddTrackedAccount(ctx context.Context, handle string) (model.TrackedAccount, error)
	ListTrackedAccounts(ctx context.Context, activeOnly bool) ([]model.TrackedAccount, error)
	SaveRun(ctx context.Context, id string, started, finished time.Time, canceled bool, summary any) error
}

// RunSummary is what a run reports to its caller and persists.
type RunSummary struct {
	RunID        string                        `json:"runId"`
	StartedAt    time.Time                     `json:"startedAt"`
	FinishedAt   time.Time                     `json:"finishedAt"`
	PerAccount   []AccountResult               `json:"perAccount"`
	TotalsByKind map[model.InteractionKind]int `json:"totalsByKind"`
	ScoreTable   []scoring.ContributionScore   `json:"scoreTable"`
	Canceled     bool                          `json:"canceled"`
	Error        string                        `json:"error,omitempty"`
}

// Count returns how many accounts ended with status.
func (s RunSummary) Count(status model.AccountStatus) int {
	n := 0
	for _, a := range s.PerAccount {
		if a.Status == status {
			n++
		}
	}
	return n
}

// Runner ties collection and scoring together.
type Runner struct {
	store     Store
	cfg       config.Config
	collector *Collector
	scorer    *Scorer
	now       func() time.Time
}

func NewRunner(store Store, client provider.Client, cfg config.Config) *Runner {
	res := resolve.New(client, store, cfg.Provider.TimelineCount)
	return &Runner{
		store:     store,
		cfg:       cfg,
		collector: NewCollector(res, store, cfg.Collection.InterAccountDelay(), cfg.Collection.InterAccountJitter()),
		scorer:    NewScorer(store, cfg.Collection.OfficialHandle),
		now:       time.Now,
	}
}

// Handles returns the handles a run collects: the official account first,
// then active tracked accounts in registration order.
func (r *Runner) Handles(ctx context.Context) ([]string, error) {
	official := util.NormalizeHandle(r.cfg.Collection.OfficialHandle)
	if official != "" {
		if _, err := r.store.AddTrackedAccount(ctx, official); err != nil {
			return nil, err
		}
	}
	accounts, err := r.store.ListTrackedAccounts(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if a.Handle == official {
			out = append([]string{a.Handle}, out...)
			continue
		}
		out = append(out, a.Handle)
	}
	return out, nil
}

// Collect runs only the collection half.
func (r *Runner) Collect(ctx context.Context) ([]AccountResult, error) {
	handles, err := r.Handles(ctx)
	if err != nil {
		return nil, err
	}
	return r.collector.Collect(ctx, handles), nil
}

// Score runs only the scoring half over the configured window ending now.
func (r *Runner) Score(ctx context.Context) (ScoreResult, error) {
	accounts, err := r.store.ListTrackedAccounts(ctx, true)
	if err != nil {
		return ScoreResult{}, err
	}
	return r.scorer.Run(ctx, accounts, r.now().UTC().Add(-r.cfg.Collection.ScoreWindow()))
}

// RunOnce collects every tracked account, scores the window and persists the
// summary. Failures end up in the summary; RunOnce never returns an error.
func (r *Runner) RunOnce(ctx context.Context) RunSummary {
	start := time.Now()
	metrics.CollectionRuns.Inc()
	defer metrics.ObserveCollectionDuration(start)

	sum := RunSummary{RunID: uuid.NewString(), StartedAt: r.now().UTC()}
	logging.Info("run_start", map[string]any{"run_id": sum.RunID})

	results, err := r.Collect(ctx)
	sum.PerAccount = results
	switch {
	case ctx.Err() != nil:
		sum.Canceled = true
	case err != nil:
		sum.Error = "list accounts: " + err.Error()
	default:
		scored, err := r.Score(ctx)
		if err != nil {
			sum.Error = "score: " + err.Error()
		}
		sum.ScoreTable = scored.Scores
		sum.TotalsByKind = scored.TotalsByKind
	}
	if sum.TotalsByKind == nil {
		sum.TotalsByKind = map[model.InteractionKind]int{}
	}
	sum.FinishedAt = r.now().UTC()

	if err := r.store.SaveRun(ctx, sum.RunID, sum.StartedAt, sum.FinishedAt, sum.Canceled, sum); err != nil {
		logging.Error("run_save_failed", map[string]any{"run_id": sum.RunID, "error": err.Error()})
	}
	logging.Info("run_done", map[string]any{
		"run_id":   sum.RunID,
		"success":  sum.Count(model.StatusSuccess),
		"failed":   sum.Count(model.StatusFailed),
		"canceled": sum.Count(model.StatusCanceled),
		"took_ms":  time.Since(start).Milliseconds(),
	})
	return sum
}
