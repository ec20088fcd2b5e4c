package sqlitestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kolmeter/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func snap(id string, likes int, observed time.Time) model.TweetSnapshot {
	return model.TweetSnapshot{AccountID: "4400", TweetID: id, Text: "t" + id, Likes: likes, ObservedAt: observed}
}

func TestUpsertIsIdempotentAndLastWriteWins(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	batch := []model.TweetSnapshot{snap("1", 1, now), snap("2", 2, now)}
	require.NoError(t, db.UpsertSnapshots(ctx, batch))
	first, err := db.ReadAccountSnapshots(ctx, "4400")
	require.NoError(t, err)
	require.NoError(t, db.UpsertSnapshots(ctx, batch))
	second, err := db.ReadAccountSnapshots(ctx, "4400")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, second, 2)

	later := now.Add(time.Minute)
	updated := snap("1", 50, later)
	updated.IsPinned = true
	updated.MediaType = "video"
	updated.RetweetOf = "900"
	require.NoError(t, db.UpsertSnapshots(ctx, []model.TweetSnapshot{updated}))

	got, err := db.ReadAccountSnapshots(ctx, "4400")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 50, got[0].Likes)
	assert.True(t, got[0].IsPinned)
	assert.Equal(t, "video", got[0].MediaType)
	assert.Equal(t, "900", got[0].RetweetOf)
	assert.Equal(t, later, got[0].ObservedAt)
}

func TestUpsertSurvivesCanceledContext(t *testing.T) {
	db := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, db.UpsertSnapshots(ctx, []model.TweetSnapshot{snap("1", 1, time.Now())}))
	got, err := db.ReadAccountSnapshots(context.Background(), "4400")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestUpsertRejectsMissingKeyAtomically(t *testing.T) {
	db := openTest(t)
	bad := []model.TweetSnapshot{snap("1", 1, time.Now()), {AccountID: "4400"}}
	err := db.UpsertSnapshots(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStoreWrite))
	got, err := db.ReadAccountSnapshots(context.Background(), "4400")
	require.NoError(t, err)
	assert.Empty(t, got, "partial batch must be rolled back")
}

func TestReadRecentSnapshots(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, db.UpsertSnapshots(ctx, []model.TweetSnapshot{
		snap("old", 1, now.Add(-48*time.Hour)),
		snap("new", 1, now),
	}))
	got, err := db.ReadRecentSnapshots(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].TweetID)
}

func TestTrackedAccounts(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	a, err := db.AddTrackedAccount(ctx, "@Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Handle)
	assert.True(t, a.Active)
	assert.Len(t, a.ID, 36)

	again, err := db.AddTrackedAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	_, err = db.AddTrackedAccount(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, db.SetAccountActive(ctx, "bob", false))
	require.NoError(t, db.SetProviderID(ctx, "alice", "4400", time.Now()))

	active, err := db.ListTrackedAccounts(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "4400", active[0].ProviderID)
	assert.False(t, active[0].ResolvedAt.IsZero())

	all, err := db.ListTrackedAccounts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, db.SetAccountActive(ctx, "carol", true), ErrNotFound)
	_, err = db.TrackedAccountByHandle(ctx, "carol")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.AddTrackedAccount(ctx, " @ ")
	assert.Error(t, err)
}

func TestInteractionsAndRuns(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)
	first := []model.Interaction{
		{AccountID: "1", TweetID: "a", OfficialTweetID: "9", Kind: model.KindRetweet, Confidence: model.ConfidenceHigh, Rule: "retweet_ref", At: at},
		{AccountID: "1", TweetID: "b", Kind: model.KindReply, Confidence: model.ConfidenceLow, Rule: "mention_fallback", At: at},
	}
	require.NoError(t, db.ReplaceInteractions(ctx, first))
	require.NoError(t, db.ReplaceInteractions(ctx, first[:1]))
	got, err := db.LoadInteractions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first[0], got[0])

	totals, err := db.InteractionTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.InteractionKind]int{model.KindRetweet: 1}, totals)

	_, err = db.LastRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db.SaveRun(ctx, "r1", at, at.Add(time.Second), false, map[string]int{"accounts": 2}))
	require.NoError(t, db.SaveRun(ctx, "r2", at.Add(time.Hour), at.Add(time.Hour), true, map[string]int{"accounts": 1}))
	last, err := db.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", last.ID)
	assert.True(t, last.Canceled)
	assert.JSONEq(t, `{"accounts":1}`, string(last.Summary))
}
