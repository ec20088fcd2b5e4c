package normalize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kolmeter/internal/model"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func tweetIDs(ts []model.Tweet) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestNormalizeProfileWithStringifiedData(t *testing.T) {
	res, err := Normalize(readFixture(t, "profile_stringified.json"))
	require.NoError(t, err)

	assert.Equal(t, "4400", res.AccountID)
	assert.Equal(t, "alice", res.Profile.ScreenName)
	assert.Equal(t, 1200, res.Profile.FollowersCount)
	assert.Equal(t, 300, res.Profile.FollowingCount)
	assert.Equal(t, []string{"111"}, res.PinnedFromProfile)
	assert.Equal(t, []string{"111", "119"}, res.PinnedFromLegacy)
	assert.Empty(t, res.PinEntryID)
	assert.False(t, res.HasTimeline)
	assert.Empty(t, res.Skipped)
}

func TestNormalizeTimeline(t *testing.T) {
	res, err := Normalize(readFixture(t, "timeline.json"))
	require.NoError(t, err)

	assert.Equal(t, "4400", res.AccountID)
	assert.True(t, res.HasTimeline)
	assert.Equal(t, "111", res.PinEntryID)
	// duplicates are left for the reconciler
	assert.Equal(t, []string{"111", "222", "333", "111"}, tweetIDs(res.Tweets))

	rt := res.Tweets[1]
	assert.Equal(t, 7, rt.Likes)
	assert.Equal(t, 3, rt.Reposts)
	assert.Equal(t, 0, rt.Replies)
	assert.Equal(t, 1, rt.Quotes)
	assert.Equal(t, "photo", rt.MediaType)
	assert.Equal(t, "900", rt.RetweetOf)
	assert.Equal(t, time.Date(2018, 10, 11, 8, 0, 0, 0, time.UTC), rt.CreatedAt)

	reply := res.Tweets[2]
	assert.Equal(t, "901", reply.ReplyTo)
	assert.Equal(t, "902", reply.QuoteOf)

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "profile-conversation-77-tweet-444", res.Skipped[0].Entity)
	assert.Equal(t, ReasonUnavailable, res.Skipped[0].Reason)
	assert.True(t, errors.Is(res.Skipped[0], ErrUnavailable))
	assert.Equal(t, "tweet-555", res.Skipped[1].Entity)
	assert.True(t, errors.Is(res.Skipped[1], model.ErrMissingRequiredField))
}

func TestNormalizeDataStringAndObjectAgree(t *testing.T) {
	obj := []byte(`{"code":1,"data":{"user":{"result":{"rest_id":"42","pinned_tweet_ids_str":"7"}}}}`)
	str := []byte(`{"code":"1","data":"{\"user\":{\"result\":{\"rest_id\":\"42\",\"pinned_tweet_ids_str\":[7]}}}"}`)
	a, err := Normalize(obj)
	require.NoError(t, err)
	b, err := Normalize(str)
	require.NoError(t, err)
	assert.Equal(t, a.AccountID, b.AccountID)
	assert.Equal(t, a.PinnedFromProfile, b.PinnedFromProfile)
	assert.Equal(t, []string{"7"}, a.PinnedFromProfile)
}

func TestNormalizeErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `<html>502</html>`, model.ErrMalformedEnvelope},
		{"broken inner string", `{"code":1,"data":"{\"user\":"}`, model.ErrMalformedEnvelope},
		{"missing data", `{"code":1}`, model.ErrMalformedEnvelope},
		{"provider failure", `{"code":0,"msg":"user not found","data":null}`, model.ErrProviderLogical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	_, err := Normalize([]byte(`{"code":3,"msg":"rate limited"}`))
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Code)
	assert.Contains(t, pe.Error(), "rate limited")
}

func TestNormalizeMissingAccountIDIsPartial(t *testing.T) {
	raw := []byte(`{"code":1,"data":{"user":{"result":{"rest_id":"","legacy":{"screen_name":"ghost","pinned_tweet_ids_str":["5"]}}}}}`)
	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Empty(t, res.AccountID)
	assert.Equal(t, []string{"5"}, res.PinnedFromLegacy)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ReasonMissingAccountID, res.Skipped[0].Reason)

	res, err = Normalize([]byte(`{"code":1,"data":{}}`))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.True(t, errors.Is(res.Skipped[0], model.ErrMissingRequiredField))
}

func TestInstructionKind(t *testing.T) {
	assert.Equal(t, "addentries", instructionKind("TimelineAddEntries"))
	assert.Equal(t, "addentries", instructionKind("add-entries"))
	assert.Equal(t, "pinentry", instructionKind("TimelinePinEntry"))
	assert.Equal(t, "pinentry", instructionKind("pin-entry"))
}

func timelineDoc(userID string, instructions string) []byte {
	return []byte(`{"code":1,"data":{"user":{"result":{"__typename":"User","rest_id":` + userID +
		`,"timeline":{"timeline":{"instructions":[` + instructions + `]}}}}}}`)
}

func TestNormalizeNumericIDs(t *testing.T) {
	raw := timelineDoc(`4400`, `{"type":"TimelineAddEntries","entries":[
		{"entryId":"tweet-1","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":"1","legacy":{"full_text":"one"}}}}}},
		{"entryId":"tweet-2","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":2,"legacy":{"full_text":"two","in_reply_to_status_id_str":9001,"quoted_status_id_str":null}}}}}}
	]}`)
	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "4400", res.AccountID)
	assert.Equal(t, []string{"1", "2"}, tweetIDs(res.Tweets))
	assert.Equal(t, "9001", res.Tweets[1].ReplyTo)
	assert.Empty(t, res.Tweets[1].QuoteOf)
	assert.Empty(t, res.Skipped)
}

func TestNormalizeBadEntryIsSkippedAlone(t *testing.T) {
	raw := timelineDoc(`"4400"`, `{"type":"TimelineAddEntries","entries":[
		{"entryId":"tweet-1","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":"1","legacy":{"full_text":"one"}}}}}},
		{"entryId":"tweet-2","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":{"x":1},"legacy":{"full_text":"two"}}}}}},
		{"entryId":"tweet-3","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":"3","legacy":{"full_text":["not","text"]}}}}}},
		{"entryId":"cursor-bottom-0","content":{"value":[1,2]}},
		{"entryId":"tweet-4","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":"4","legacy":{"full_text":"four"}}}}}}
	]}`)
	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, tweetIDs(res.Tweets))
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "tweet-2", res.Skipped[0].Entity)
	assert.Equal(t, ReasonMalformedEntity, res.Skipped[0].Reason)
	assert.Equal(t, "tweet-3", res.Skipped[1].Entity)
	assert.True(t, errors.Is(res.Skipped[1], model.ErrMissingRequiredField))
}

func TestNormalizeUnavailablePinnedTweetKeepsID(t *testing.T) {
	raw := timelineDoc(`"4400"`, `{"type":"TimelinePinEntry","entry":
		{"entryId":"tweet-111","content":{"itemContent":{"tweet_results":{"result":{"__typename":"TweetTombstone"}}}}}}`)
	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "111", res.PinEntryID)
	assert.Empty(t, res.Tweets)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ReasonUnavailable, res.Skipped[0].Reason)
}

func TestNormalizeMalformedPinEntryKeepsID(t *testing.T) {
	raw := timelineDoc(`"4400"`, `{"type":"TimelinePinEntry","entry":
		{"entryId":"tweet-112","content":{"itemContent":{"tweet_results":{"result":{"__typename":"Tweet","rest_id":true}}}}}}`)
	res, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "112", res.PinEntryID)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ReasonMalformedEntity, res.Skipped[0].Reason)
}
