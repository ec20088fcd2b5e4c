package jobs

import (
	"context"
	"fmt"
	"time"

	"kolmeter/internal/classify"
	"kolmeter/internal/metrics"
	"kolmeter/internal/model"
	"kolmeter/internal/scoring"
	"kolmeter/internal/util"
)

// ScoreStore is the store side of the scoring pass.
type ScoreStore interface {
	ReadRecentSnapshots(ctx context.Context, since time.Time) ([]model.TweetSnapshot, error)
	ReadAccountSnapshots(ctx context.Context, accountID string) ([]model.TweetSnapshot, error)
	ReplaceInteractions(ctx context.Context, in []model.Interaction) error
}

// ScoreResult is the output of one scoring pass.
type ScoreResult struct {
	Since        time.Time
	Interactions []model.Interaction
	Scores       []scoring.ContributionScore
	TotalsByKind map[model.InteractionKind]int
	OfficialIDs  int
}

// Scorer classifies recently stored tweets of tracked accounts against the
// official account's tweets and scores them.
type Scorer struct {
	store          ScoreStore
	classifier     *classify.Classifier
	officialHandle string
}

func NewScorer(store ScoreStore, officialHandle string) *Scorer {
	return &Scorer{store: store, classifier: classify.New(officialHandle), officialHandle: util.NormalizeHandle(officialHandle)}
}

// Run scores every resolved, non-official account in accounts over snapshots
// observed since since, and replaces the stored interaction rows.
func (s *Scorer) Run(ctx context.Context, accounts []model.TrackedAccount, since time.Time) (ScoreResult, error) {
	res := ScoreResult{Since: since}

	official := model.NewIDSet()
	for _, a := range accounts {
		if a.Handle != s.officialHandle || a.ProviderID == "" {
			continue
		}
		snaps, err := s.store.ReadAccountSnapshots(ctx, a.ProviderID)
		if err != nil {
			return res, fmt.Errorf("read official tweets: %w", err)
		}
		for _, sn := range snaps {
			official.Add(sn.TweetID)
		}
	}
	res.OfficialIDs = len(official)

	recent, err := s.store.ReadRecentSnapshots(ctx, since)
	if err != nil {
		return res, fmt.Errorf("read recent snapshots: %w", err)
	}
	byAccount := make(map[string][]model.TweetSnapshot)
	for _, sn := range recent {
		byAccount[sn.AccountID] = append(byAccount[sn.AccountID], sn)
	}

	var input []scoring.AccountInteractions
	for _, a := range accounts {
		if a.Handle == s.officialHandle || a.ProviderID == "" {
			continue
		}
		ai := scoring.AccountInteractions{AccountID: a.ProviderID, Handle: a.Handle}
		for _, sn := range byAccount[a.ProviderID] {
			m, ok := s.classifier.ClassifySnapshot(sn, official)
			if !ok {
				continue
			}
			at := sn.PostedAt
			if at.IsZero() {
				at = sn.ObservedAt
			}
			ai.Interactions = append(ai.Interactions, model.Interaction{
				AccountID:       a.ProviderID,
				TweetID:         sn.TweetID,
				OfficialTweetID: m.OfficialTweetID,
				Kind:            m.Kind,
				Confidence:      m.Confidence,
				Rule:            m.Rule,
				At:              at,
			})
		}
		res.Interactions = append(res.Interactions, ai.Interactions...)
		input = append(input, ai)
	}

	res.Scores = scoring.Score(input)
	res.TotalsByKind = scoring.TotalsByKind(res.Scores)
	if err := s.store.ReplaceInteractions(ctx, res.Interactions); err != nil {
		return res, err
	}
	for k, n := range res.TotalsByKind {
		metrics.AddInteractions(string(k), n)
	}
	return res, nil
}
