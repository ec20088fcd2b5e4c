package model

import (
	"sort"
	"time"
)

// PinnedPlaceholderText marks a snapshot synthesized for a pinned tweet that
// was not part of the fetched timeline window.
const PinnedPlaceholderText = "[Pinned Tweet - Not in recent timeline]"

// TrackedAccount is one monitored handle.
type TrackedAccount struct {
	ID         string
	Handle     string
	ProviderID string // empty until the first successful resolve
	Active     bool
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// Profile holds the profile fields the provider returns next to the account id.
type Profile struct {
	AccountID      string
	ScreenName     string
	Name           string
	FollowersCount int
	FollowingCount int
	TweetCount     int
}

// Tweet is a flat tweet record as produced by the normalizer.
type Tweet struct {
	ID        string
	Text      string
	Likes     int
	Reposts   int
	Replies   int
	Quotes    int
	MediaType string
	CreatedAt time.Time

	// Structural references, empty when the provider did not report them.
	RetweetOf string
	QuoteOf   string
	ReplyTo   string
}

// TweetSnapshot is one observation of one tweet of a tracked account.
// (AccountID, TweetID) is unique in the store; later observations replace earlier ones.
type TweetSnapshot struct {
	AccountID  string
	TweetID    string
	Text       string
	Likes      int
	Reposts    int
	Replies    int
	Quotes     int
	IsPinned   bool
	MediaType  string
	PostedAt   time.Time
	ObservedAt time.Time
	RetweetOf  string
	QuoteOf    string
	ReplyTo    string
}

// IsPlaceholder reports whether s stands in for a pinned tweet that was not fetched.
func (s TweetSnapshot) IsPlaceholder() bool {
	return s.IsPinned && s.Text == PinnedPlaceholderText
}

// AsTweet returns the tweet view of a snapshot.
func (s TweetSnapshot) AsTweet() Tweet {
	return Tweet{
		ID:        s.TweetID,
		Text:      s.Text,
		Likes:     s.Likes,
		Reposts:   s.Reposts,
		Replies:   s.Replies,
		Quotes:    s.Quotes,
		MediaType: s.MediaType,
		CreatedAt: s.PostedAt,
		RetweetOf: s.RetweetOf,
		QuoteOf:   s.QuoteOf,
		ReplyTo:   s.ReplyTo,
	}
}

// IDSet is a set of tweet ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, ignoring empty strings.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new.
func (s IDSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union adds every id of o to s.
func (s IDSet) Union(o IDSet) {
	for id := range o {
		s[id] = struct{}{}
	}
}

// Sorted returns the ids in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// InteractionKind is the mechanism by which a tweet interacts with the official account.
type InteractionKind string

const (
	KindRetweet InteractionKind = "retweet"
	KindQuote   InteractionKind = "quote"
	KindReply   InteractionKind = "reply"
	KindLike    InteractionKind = "like"
	KindLink    InteractionKind = "link"
)

// Kinds lists every interaction kind in classification priority order.
var Kinds = []InteractionKind{KindRetweet, KindQuote, KindReply, KindLike, KindLink}

// Confidence grades how reliable the signal behind a classification is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Interaction is a classified tweet of a tracked account.
type Interaction struct {
	AccountID       string
	TweetID         string
	OfficialTweetID string // empty when only the handle matched
	Kind            InteractionKind
	Confidence      Confidence
	Rule            string
	At              time.Time
}

// AccountStatus is the per-account outcome of a collection run.
type AccountStatus string

const (
	StatusSuccess  AccountStatus = "success"
	StatusFailed   AccountStatus = "failed"
	StatusCanceled AccountStatus = "canceled"
)
