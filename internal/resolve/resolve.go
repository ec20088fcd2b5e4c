// Package resolve turns a public handle into a provider account id and the
// set of pinned tweet ids known for it.
package resolve

import (
	"context"
	"fmt"
	"time"

	"kolmeter/internal/logging"
	"kolmeter/internal/model"
	"kolmeter/internal/normalize"
	"kolmeter/internal/provider"
	"kolmeter/internal/util"
)

// Pinned-id signal sources, in the order they are consulted.
const (
	SourceProfile  = "profile"
	SourceLegacy   = "legacy"
	SourcePinEntry = "pin_entry"
)

// AccountRecorder persists the resolved provider id of a handle.
type AccountRecorder interface {
	SetProviderID(ctx context.Context, handle, providerID string, at time.Time) error
}

// Resolution is the outcome of resolving one handle.
type Resolution struct {
	Handle    string
	AccountID string
	Profile   model.Profile
	PinnedIDs model.IDSet
	// Sources lists, per pinned id, the signals that reported it.
	Sources map[string][]string

	// Timeline carries the tweets fetched alongside the pin entry.
	Timeline    []model.Tweet
	Skipped     []normalize.Skip
	TimelineErr error
}

// Resolver resolves handles through the provider.
type Resolver struct {
	client        provider.Client
	recorder      AccountRecorder
	timelineCount int
	now           func() time.Time
}

func New(client provider.Client, recorder AccountRecorder, timelineCount int) *Resolver {
	return &Resolver{client: client, recorder: recorder, timelineCount: timelineCount, now: time.Now}
}

// Resolve fetches the profile of handle, then its timeline. A failed profile
// fetch fails the resolution; a failed timeline fetch only loses the
// pin-entry signal and is reported in TimelineErr.
func (r *Resolver) Resolve(ctx context.Context, handle string) (*Resolution, error) {
	h := util.NormalizeHandle(handle)
	prof, err := r.client.Profile(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: profile: %w", h, err)
	}
	if prof.AccountID == "" {
		return nil, fmt.Errorf("resolve %s: %w: account id", h, model.ErrMissingRequiredField)
	}
	res := &Resolution{
		Handle:    h,
		AccountID: prof.AccountID,
		Profile:   prof.Profile,
		PinnedIDs: model.NewIDSet(),
		Sources:   map[string][]string{},
		Skipped:   append([]normalize.Skip(nil), prof.Skipped...),
	}
	res.addPinned(SourceProfile, prof.PinnedFromProfile...)
	res.addPinned(SourceLegacy, prof.PinnedFromLegacy...)

	if r.recorder != nil {
		if err := r.recorder.SetProviderID(ctx, h, prof.AccountID, r.now().UTC()); err != nil {
			logging.Warn("resolve_record_failed", map[string]any{"handle": h, "error": err.Error()})
		}
	}

	tl, err := r.client.Timeline(ctx, prof.AccountID, r.timelineCount)
	if err != nil {
		res.TimelineErr = err
		logging.Warn("resolve_timeline_failed", map[string]any{"handle": h, "account_id": prof.AccountID, "error": err.Error()})
		return res, nil
	}
	res.addPinned(SourcePinEntry, tl.PinEntryID)
	res.Timeline = tl.Tweets
	res.Skipped = append(res.Skipped, tl.Skipped...)
	logging.Debug("resolve_ok", map[string]any{
		"handle": h, "account_id": res.AccountID, "pinned": res.PinnedIDs.Sorted(), "tweets": len(res.Timeline),
	})
	return res, nil
}

func (r *Resolution) addPinned(source string, ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		r.PinnedIDs.Add(id)
		r.Sources[id] = append(r.Sources[id], source)
	}
}
