package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kolmeter/internal/metrics"
	"kolmeter/internal/model"
)

// ErrUnavailable marks a tombstoned, withheld or deleted tweet.
var ErrUnavailable = errors.New("tweet unavailable")

// Skip records one entity the normalizer dropped.
type Skip struct {
	Entity string // entry id or "profile"
	Reason string
	Err    error
}

func (s Skip) Error() string { return fmt.Sprintf("%s: %s", s.Entity, s.Reason) }
func (s Skip) Unwrap() error { return s.Err }

const (
	ReasonMissingAccountID = "missing_account_id"
	ReasonMissingTweetID   = "missing_tweet_id"
	ReasonUnavailable      = "unavailable"
	ReasonUnknownType      = "unknown_type"
	ReasonMalformedEntity  = "malformed_entity"
)

// Result is the flat view of one provider answer. Profile and timeline
// answers share the same tree, so both halves may be populated.
type Result struct {
	AccountID string
	Profile   model.Profile

	// Pinned ids as reported by the profile node, its legacy block and a
	// pin-entry instruction respectively.
	PinnedFromProfile []string
	PinnedFromLegacy  []string
	PinEntryID        string

	Tweets  []model.Tweet
	Skipped []Skip

	// HasTimeline is set when a timeline node was present.
	HasTimeline bool
}

type document struct {
	User struct {
		Result *userResult `json:"result"`
	} `json:"user"`
}

type userResult struct {
	Typename       string  `json:"__typename"`
	RestID         flexID  `json:"rest_id"`
	PinnedTweetIDs flexIDs `json:"pinned_tweet_ids_str"`
	Legacy         struct {
		ScreenName     string  `json:"screen_name"`
		Name           string  `json:"name"`
		FollowersCount flexInt `json:"followers_count"`
		FriendsCount   flexInt `json:"friends_count"`
		StatusesCount  flexInt `json:"statuses_count"`
		PinnedTweetIDs flexIDs `json:"pinned_tweet_ids_str"`
	} `json:"legacy"`
	Timeline *timelineNode `json:"timeline"`
}

type timelineNode struct {
	Instructions []instruction `json:"instructions"`
	Timeline     *timelineNode `json:"timeline"`
}

// Entries stay raw so one undecodable entry is skipped on its own.
type instruction struct {
	Type    string            `json:"type"`
	Entries []json.RawMessage `json:"entries"`
	Entry   json.RawMessage   `json:"entry"`
}

type entry struct {
	EntryID string `json:"entryId"`
	Content struct {
		ItemContent *itemContent `json:"itemContent"`
		Items       []struct {
			EntryID string `json:"entryId"`
			Item    struct {
				ItemContent *itemContent `json:"itemContent"`
			} `json:"item"`
		} `json:"items"`
	} `json:"content"`
}

type itemContent struct {
	TweetResults struct {
		Result *tweetResult `json:"result"`
	} `json:"tweet_results"`
}

type tweetResult struct {
	Typename  string       `json:"__typename"`
	RestID    flexID       `json:"rest_id"`
	Tweet     *tweetResult `json:"tweet"`
	Legacy    tweetLegacy  `json:"legacy"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
}

type mediaList struct {
	Media []struct {
		Type string `json:"type"`
	} `json:"media"`
}

type tweetLegacy struct {
	IDStr                 flexID    `json:"id_str"`
	FullText              string    `json:"full_text"`
	FavoriteCount         flexInt   `json:"favorite_count"`
	RetweetCount          flexInt   `json:"retweet_count"`
	ReplyCount            flexInt   `json:"reply_count"`
	QuoteCount            flexInt   `json:"quote_count"`
	CreatedAt             string    `json:"created_at"`
	InReplyToStatusIDStr  flexID    `json:"in_reply_to_status_id_str"`
	QuotedStatusIDStr     flexID    `json:"quoted_status_id_str"`
	ExtendedEntities      mediaList `json:"extended_entities"`
	Entities              mediaList `json:"entities"`
	RetweetedStatusResult struct {
		Result *tweetResult `json:"result"`
	} `json:"retweeted_status_result"`
}

// Normalize decodes a raw provider answer. Envelope and payload failures are
// returned as errors; per-entity problems are collected in Result.Skipped.
func Normalize(raw []byte) (*Result, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := env.Data.Decode(&doc); err != nil {
		return nil, err
	}
	res := &Result{}
	u := doc.User.Result
	if u == nil {
		res.skip("profile", ReasonMissingAccountID, model.ErrMissingRequiredField)
		return res, nil
	}
	if isNumericID(string(u.RestID)) {
		res.AccountID = string(u.RestID)
	} else {
		res.skip("profile", ReasonMissingAccountID, model.ErrMissingRequiredField)
	}
	res.Profile = model.Profile{
		AccountID:      res.AccountID,
		ScreenName:     u.Legacy.ScreenName,
		Name:           u.Legacy.Name,
		FollowersCount: int(u.Legacy.FollowersCount),
		FollowingCount: int(u.Legacy.FriendsCount),
		TweetCount:     int(u.Legacy.StatusesCount),
	}
	res.PinnedFromProfile = []string(u.PinnedTweetIDs)
	res.PinnedFromLegacy = []string(u.Legacy.PinnedTweetIDs)

	tl := u.Timeline
	// Some answers nest the instruction list one level deeper.
	for tl != nil && len(tl.Instructions) == 0 && tl.Timeline != nil {
		tl = tl.Timeline
	}
	if tl != nil {
		res.HasTimeline = true
		for _, ins := range tl.Instructions {
			res.scanInstruction(ins)
		}
	}
	return res, nil
}

func (r *Result) scanInstruction(ins instruction) {
	switch instructionKind(ins.Type) {
	case "addentries":
		for _, raw := range ins.Entries {
			e, ok := r.decodeEntry(raw)
			if !ok {
				continue
			}
			if e.Content.ItemContent != nil {
				r.addTweet(e.EntryID, e.Content.ItemContent.TweetResults.Result)
			}
			for _, it := range e.Content.Items {
				if it.Item.ItemContent == nil {
					continue
				}
				id := it.EntryID
				if id == "" {
					id = e.EntryID
				}
				r.addTweet(id, it.Item.ItemContent.TweetResults.Result)
			}
		}
	case "pinentry":
		e, ok := r.decodeEntry(ins.Entry)
		if ok && e.Content.ItemContent != nil {
			if t, ok := r.addTweet(e.EntryID, e.Content.ItemContent.TweetResults.Result); ok {
				r.PinEntryID = t.ID
				return
			}
		}
		// An unavailable or undecodable pinned tweet is still pinned; its id lives
		// in the entry id.
		if id := strings.TrimPrefix(e.EntryID, "tweet-"); id != e.EntryID && isNumericID(id) {
			r.PinEntryID = id
		}
	}
}

// decodeEntry decodes one timeline entry. Entries outside the kept prefixes
// are ignored; kept entries that fail to decode are recorded as skips.
func (r *Result) decodeEntry(raw json.RawMessage) (entry, bool) {
	var e entry
	if len(raw) == 0 || string(raw) == "null" {
		return e, false
	}
	err := json.Unmarshal(raw, &e)
	if e.EntryID == "" {
		var head struct {
			EntryID string `json:"entryId"`
		}
		_ = json.Unmarshal(raw, &head)
		e.EntryID = head.EntryID
	}
	if !keepEntry(e.EntryID) {
		return e, false
	}
	if err != nil {
		r.skip(e.EntryID, ReasonMalformedEntity, fmt.Errorf("%w: %v", model.ErrMissingRequiredField, err))
		return e, false
	}
	return e, true
}

func (r *Result) addTweet(entryID string, tr *tweetResult) (model.Tweet, bool) {
	t, skip := mapTweet(tr)
	if skip != nil {
		skip.Entity = entryID
		r.skip(skip.Entity, skip.Reason, skip.Err)
		return model.Tweet{}, false
	}
	r.Tweets = append(r.Tweets, t)
	return t, true
}

func (r *Result) skip(entity, reason string, err error) {
	r.Skipped = append(r.Skipped, Skip{Entity: entity, Reason: reason, Err: err})
	metrics.IncNormalizeSkipped(reason)
}

func mapTweet(tr *tweetResult) (model.Tweet, *Skip) {
	tr = unwrapTweet(tr)
	if tr == nil {
		return model.Tweet{}, &Skip{Reason: ReasonUnavailable, Err: ErrUnavailable}
	}
	switch tr.Typename {
	case "Tweet", "":
	case "TweetTombstone", "TweetUnavailable":
		return model.Tweet{}, &Skip{Reason: ReasonUnavailable, Err: ErrUnavailable}
	default:
		return model.Tweet{}, &Skip{Reason: ReasonUnknownType, Err: ErrUnavailable}
	}
	id := string(tr.RestID)
	if id == "" {
		id = string(tr.Legacy.IDStr)
	}
	if id == "" {
		return model.Tweet{}, &Skip{Reason: ReasonMissingTweetID, Err: model.ErrMissingRequiredField}
	}
	lg := tr.Legacy
	text := tr.NoteTweet.NoteTweetResults.Result.Text
	if text == "" {
		text = lg.FullText
	}
	t := model.Tweet{
		ID:        id,
		Text:      text,
		Likes:     int(lg.FavoriteCount),
		Reposts:   int(lg.RetweetCount),
		Replies:   int(lg.ReplyCount),
		Quotes:    int(lg.QuoteCount),
		MediaType: mediaType(lg),
		CreatedAt: parseCreatedAt(lg.CreatedAt),
		QuoteOf:   string(lg.QuotedStatusIDStr),
		ReplyTo:   string(lg.InReplyToStatusIDStr),
	}
	if rt := unwrapTweet(lg.RetweetedStatusResult.Result); rt != nil {
		t.RetweetOf = string(rt.RestID)
		if t.RetweetOf == "" {
			t.RetweetOf = string(rt.Legacy.IDStr)
		}
	}
	return t, nil
}

func unwrapTweet(tr *tweetResult) *tweetResult {
	for tr != nil && tr.Typename == "TweetWithVisibilityResults" {
		tr = tr.Tweet
	}
	return tr
}

func mediaType(lg tweetLegacy) string {
	if len(lg.ExtendedEntities.Media) > 0 {
		return lg.ExtendedEntities.Media[0].Type
	}
	if len(lg.Entities.Media) > 0 {
		return lg.Entities.Media[0].Type
	}
	return ""
}

func parseCreatedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RubyDate, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// instructionKind folds "TimelineAddEntries" and "add-entries" to "addentries".
func instructionKind(t string) string {
	t = strings.ToLower(strings.ReplaceAll(t, "-", ""))
	return strings.TrimPrefix(t, "timeline")
}

func keepEntry(id string) bool {
	for _, p := range []string{"tweet-", "profile-conversation-", "conversationthread-"} {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
