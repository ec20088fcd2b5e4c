// Package classify decides whether and how a tweet interacts with the
// official account. Rules are an ordered table; the first match wins and
// structural references are always consulted before text heuristics.
package classify

import (
	"regexp"
	"strings"

	"kolmeter/internal/model"
	"kolmeter/internal/util"
)

// Match is a positive classification.
type Match struct {
	Kind            model.InteractionKind
	OfficialTweetID string // empty when only the handle matched
	Confidence      model.Confidence
	Rule            string
}

// Marker words. Latin words match whole tokens, the others match substrings.
var (
	repostMarkers = []string{"rt", "转推", "转发"}
	quoteMarkers  = markers{words: []string{"quote", "quoted", "quoting", "qt"}, substrings: []string{"引用"}}
	replyMarkers  = markers{words: []string{"reply", "replying", "replied", "comment", "commenting"}, substrings: []string{"回复", "评论"}}
	likeMarkers   = markers{words: []string{"like", "liked", "likes", "favorite", "favorited", "fav"}, substrings: []string{"点赞", "喜欢"}}
)

var digitRun = regexp.MustCompile(`[0-9]+`)

type markers struct {
	words      []string
	substrings []string
}

func (m markers) in(text string) bool {
	return util.ContainsWord(text, m.words) || util.ContainsAnyCaseInsensitive(text, m.substrings)
}

type rule struct {
	name       string
	kind       model.InteractionKind
	confidence model.Confidence
	// match returns the official tweet id it matched on, if any.
	match func(t model.Tweet, official model.IDSet) (string, bool)
}

// Classifier holds the decision table for one official handle.
type Classifier struct {
	mention string // "@handle", lower-case; empty disables text rules
	rules   []rule
}

func New(officialHandle string) *Classifier {
	c := &Classifier{}
	if h := util.NormalizeHandle(officialHandle); h != "" {
		c.mention = "@" + h
	}
	c.rules = []rule{
		{"retweet_ref", model.KindRetweet, model.ConfidenceHigh, ref(func(t model.Tweet) string { return t.RetweetOf })},
		{"retweet_text", model.KindRetweet, model.ConfidenceMedium, c.repostPrefix},
		{"quote_ref", model.KindQuote, model.ConfidenceHigh, ref(func(t model.Tweet) string { return t.QuoteOf })},
		{"quote_text", model.KindQuote, model.ConfidenceMedium, c.markerWithMention(quoteMarkers)},
		{"reply_ref", model.KindReply, model.ConfidenceHigh, ref(func(t model.Tweet) string { return t.ReplyTo })},
		{"reply_text", model.KindReply, model.ConfidenceMedium, c.markerWithMention(replyMarkers)},
		{"like_text", model.KindLike, model.ConfidenceLow, c.markerWithMention(likeMarkers)},
		{"link_text", model.KindLink, model.ConfidenceMedium, linksOfficial},
		// Most bare mentions are conversational replies.
		{"mention_fallback", model.KindReply, model.ConfidenceLow, c.bareMention},
	}
	return c
}

// RuleNames lists the rules in evaluation order.
func (c *Classifier) RuleNames() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.name)
	}
	return out
}

// Classify returns the first matching rule's verdict.
func (c *Classifier) Classify(t model.Tweet, official model.IDSet) (Match, bool) {
	for _, r := range c.rules {
		if id, ok := r.match(t, official); ok {
			return Match{Kind: r.kind, OfficialTweetID: id, Confidence: r.confidence, Rule: r.name}, true
		}
	}
	return Match{}, false
}

// ClassifySnapshot classifies a stored snapshot. Placeholders never match.
func (c *Classifier) ClassifySnapshot(s model.TweetSnapshot, official model.IDSet) (Match, bool) {
	if s.IsPlaceholder() {
		return Match{}, false
	}
	return c.Classify(s.AsTweet(), official)
}

func ref(field func(model.Tweet) string) func(model.Tweet, model.IDSet) (string, bool) {
	return func(t model.Tweet, official model.IDSet) (string, bool) {
		id := field(t)
		return id, id != "" && official.Has(id)
	}
}

// repostPrefix matches "RT @handle" style text, only when no structural
// repost reference exists.
func (c *Classifier) repostPrefix(t model.Tweet, _ model.IDSet) (string, bool) {
	if c.mention == "" || t.RetweetOf != "" {
		return "", false
	}
	lt := strings.ToLower(strings.TrimSpace(t.Text))
	for _, m := range repostMarkers {
		if !strings.HasPrefix(lt, m) {
			continue
		}
		rest := strings.TrimLeft(lt[len(m):], " \t:：")
		if hasMentionAt(rest, c.mention, 0) {
			return "", true
		}
	}
	return "", false
}

func (c *Classifier) markerWithMention(m markers) func(model.Tweet, model.IDSet) (string, bool) {
	return func(t model.Tweet, _ model.IDSet) (string, bool) {
		return "", c.mentions(t.Text) && m.in(t.Text)
	}
}

func (c *Classifier) bareMention(t model.Tweet, _ model.IDSet) (string, bool) {
	return "", c.mentions(t.Text)
}

// linksOfficial matches an official tweet id standing alone or inside a
// /status/<id> path.
func linksOfficial(t model.Tweet, official model.IDSet) (string, bool) {
	if len(official) == 0 {
		return "", false
	}
	for _, run := range digitRun.FindAllString(t.Text, -1) {
		if official.Has(run) {
			return run, true
		}
	}
	return "", false
}

func (c *Classifier) mentions(text string) bool {
	if c.mention == "" {
		return false
	}
	lt := strings.ToLower(text)
	for i := strings.Index(lt, c.mention); i >= 0; {
		if hasMentionAt(lt, c.mention, i) {
			return true
		}
		next := strings.Index(lt[i+1:], c.mention)
		if next < 0 {
			break
		}
		i += 1 + next
	}
	return false
}

// hasMentionAt reports whether mention starts at i, is not glued to a
// preceding word (as in an email address) and is not the prefix of a longer
// handle.
func hasMentionAt(s, mention string, i int) bool {
	if !strings.HasPrefix(s[i:], mention) {
		return false
	}
	if i > 0 && isHandleByte(s[i-1]) {
		return false
	}
	end := i + len(mention)
	return end == len(s) || !isHandleByte(s[end])
}

func isHandleByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
