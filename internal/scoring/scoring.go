// Package scoring aggregates classified interactions into contribution scores.
package scoring

import (
	"math"
	"sort"

	"kolmeter/internal/model"
)

// Weights per interaction kind. Fixed for output compatibility.
var Weights = map[model.InteractionKind]float64{
	model.KindRetweet: 2.0,
	model.KindQuote:   2.0,
	model.KindLink:    1.5,
	model.KindReply:   1.0,
	model.KindLike:    0.5,
}

// Status labels and their thresholds on the unrounded weighted score.
const (
	LabelCoreContributor = "core_contributor"
	LabelActive          = "active"
	LabelLowInteraction  = "low_interaction"

	CoreContributorThreshold = 500.0
	ActiveThreshold          = 100.0
)

// AccountInteractions is the scorer's input for one tracked account.
type AccountInteractions struct {
	AccountID    string
	Handle       string
	Interactions []model.Interaction
}

// ContributionScore is one row of the score table.
type ContributionScore struct {
	AccountID         string                        `json:"accountId"`
	Handle            string                        `json:"handle"`
	Counts            map[model.InteractionKind]int `json:"counts"`
	WeightedScore     float64                       `json:"weightedScore"`
	RoundedScore      int                           `json:"roundedScore"`
	ParticipationRate float64                       `json:"participationRate"`
	StatusLabel       string                        `json:"statusLabel"`
	// BestEffort counts low-confidence interactions included in the score.
	BestEffort int `json:"bestEffort"`
}

// WeightedScore sums count times weight over every kind.
func WeightedScore(counts map[model.InteractionKind]int) float64 {
	var s float64
	for _, k := range model.Kinds {
		s += float64(counts[k]) * Weights[k]
	}
	return s
}

// StatusLabel maps a weighted score to its label.
func StatusLabel(weighted float64) string {
	switch {
	case weighted >= CoreContributorThreshold:
		return LabelCoreContributor
	case weighted >= ActiveThreshold:
		return LabelActive
	}
	return LabelLowInteraction
}

// Score builds the score table, ordered by descending weighted score. Ties
// keep input order.
func Score(in []AccountInteractions) []ContributionScore {
	out := make([]ContributionScore, 0, len(in))
	maxWeighted := 0.0
	for _, a := range in {
		counts := make(map[model.InteractionKind]int, len(model.Kinds))
		for _, k := range model.Kinds {
			counts[k] = 0
		}
		bestEffort := 0
		for _, it := range a.Interactions {
			if _, known := Weights[it.Kind]; !known {
				continue
			}
			counts[it.Kind]++
			if it.Confidence == model.ConfidenceLow {
				bestEffort++
			}
		}
		ws := WeightedScore(counts)
		if ws > maxWeighted {
			maxWeighted = ws
		}
		out = append(out, ContributionScore{
			AccountID:     a.AccountID,
			Handle:        a.Handle,
			Counts:        counts,
			WeightedScore: ws,
			RoundedScore:  int(math.Round(ws)),
			StatusLabel:   StatusLabel(ws),
			BestEffort:    bestEffort,
		})
	}
	denom := math.Max(maxWeighted, 1)
	for i := range out {
		out[i].ParticipationRate = clamp(100*out[i].WeightedScore/denom, 0, 100)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WeightedScore > out[j].WeightedScore })
	return out
}

// TotalsByKind sums counts over a score table.
func TotalsByKind(scores []ContributionScore) map[model.InteractionKind]int {
	out := make(map[model.InteractionKind]int, len(model.Kinds))
	for _, k := range model.Kinds {
		out[k] = 0
	}
	for _, s := range scores {
		for k, n := range s.Counts {
			out[k] += n
		}
	}
	return out
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
