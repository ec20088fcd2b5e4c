package analytics

import (
	"sort"
	"time"

	"kolmeter/internal/model"
)

// DailyInteractions aggregates interactions into per-day (UTC) buckets by kind.
func DailyInteractions(in []model.Interaction) map[time.Time]map[model.InteractionKind]int {
	buckets := make(map[time.Time]map[model.InteractionKind]int)
	for _, it := range in {
		if it.At.IsZero() {
			continue
		}
		at := it.At.UTC()
		key := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[model.InteractionKind]int)
		}
		buckets[key][it.Kind]++
	}
	return buckets
}

// SortedBucketKeys returns sorted day keys.
func SortedBucketKeys(m map[time.Time]map[model.InteractionKind]int) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// ByAccount groups interactions by tracked account id, keeping input order.
func ByAccount(in []model.Interaction) map[string][]model.Interaction {
	out := make(map[string][]model.Interaction)
	for _, it := range in {
		out[it.AccountID] = append(out[it.AccountID], it)
	}
	return out
}
