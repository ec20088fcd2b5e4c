// Package providertest serves canned provider answers over httptest.
package providertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Tweet describes one timeline tweet of a canned answer.
type Tweet struct {
	ID        string
	Text      string
	Likes     int
	Reposts   int
	Replies   int
	Quotes    int
	CreatedAt time.Time
	RetweetOf string
	QuoteOf   string
	ReplyTo   string
}

// Server is a fake provider. Handlers read the maps under the lock, so tests
// may change answers between runs.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	profiles  map[string]string // handle -> raw body
	timelines map[string]string // account id -> raw body
	status    map[string]int    // path or handle/account id -> forced status
	calls     map[string]int
	apiKey    string
}

// NewServer starts a fake provider that expects apiKey on every call.
func NewServer(apiKey string) *Server {
	s := &Server{
		profiles:  map[string]string{},
		timelines: map[string]string{},
		status:    map[string]int{},
		calls:     map[string]int{},
		apiKey:    apiKey,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) SetProfile(handle, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[handle] = body
}

func (s *Server) SetTimeline(accountID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[accountID] = body
}

// FailWith forces status for a handle or account id.
func (s *Server) FailWith(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = status
}

// Calls returns how often path was hit.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[r.URL.Path]++
	if s.apiKey != "" && r.URL.Query().Get("apiKey") != s.apiKey {
		writeJSON(w, http.StatusOK, `{"code":401,"msg":"invalid api key","data":null}`)
		return
	}
	var key, body string
	var ok bool
	switch r.URL.Path {
	case "/profile":
		key = r.URL.Query().Get("handle")
		body, ok = s.profiles[key]
	case "/timeline":
		key = r.URL.Query().Get("accountId")
		body, ok = s.timelines[key]
	default:
		http.NotFound(w, r)
		return
	}
	if st, forced := s.status[key]; forced {
		writeJSON(w, st, `{"code":0,"msg":"forced failure"}`)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, `{"code":0,"msg":"not found","data":null}`)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// ProfileBody builds a profile answer. The data field is stringified, the way
// the provider sends it for this endpoint.
func ProfileBody(accountID, screenName string, pinned, legacyPinned []string) string {
	result := map[string]any{
		"__typename": "User",
		"rest_id":    accountID,
		"legacy": map[string]any{
			"screen_name":          screenName,
			"name":                 screenName,
			"followers_count":      1000,
			"friends_count":        10,
			"statuses_count":       100,
			"pinned_tweet_ids_str": nonNil(legacyPinned),
		},
	}
	if pinned != nil {
		result["pinned_tweet_ids_str"] = pinned
	}
	inner, _ := json.Marshal(map[string]any{"user": map[string]any{"result": result}})
	out, _ := json.Marshal(map[string]any{"code": 1, "msg": "SUCCESS", "data": string(inner)})
	return string(out)
}

// TimelineBody builds a timeline answer with an optional pin entry.
func TimelineBody(accountID string, pin *Tweet, tweets []Tweet) string {
	var instructions []any
	if pin != nil {
		instructions = append(instructions, map[string]any{
			"type":  "TimelinePinEntry",
			"entry": tweetEntry(*pin),
		})
	}
	entries := make([]any, 0, len(tweets)+1)
	for _, t := range tweets {
		entries = append(entries, tweetEntry(t))
	}
	entries = append(entries, map[string]any{"entryId": "cursor-bottom-0", "content": map[string]any{"value": "x"}})
	instructions = append(instructions, map[string]any{"type": "TimelineAddEntries", "entries": entries})
	doc := map[string]any{
		"code": 1,
		"msg":  "SUCCESS",
		"data": map[string]any{"user": map[string]any{"result": map[string]any{
			"__typename": "User",
			"rest_id":    accountID,
			"timeline":   map[string]any{"timeline": map[string]any{"instructions": instructions}},
		}}},
	}
	out, _ := json.Marshal(doc)
	return string(out)
}

func tweetEntry(t Tweet) map[string]any {
	legacy := map[string]any{
		"full_text":      t.Text,
		"favorite_count": t.Likes,
		"retweet_count":  t.Reposts,
		"reply_count":    t.Replies,
		"quote_count":    t.Quotes,
	}
	if !t.CreatedAt.IsZero() {
		legacy["created_at"] = t.CreatedAt.UTC().Format(time.RubyDate)
	}
	if t.RetweetOf != "" {
		legacy["retweeted_status_result"] = map[string]any{"result": map[string]any{"__typename": "Tweet", "rest_id": t.RetweetOf}}
	}
	if t.QuoteOf != "" {
		legacy["quoted_status_id_str"] = t.QuoteOf
	}
	if t.ReplyTo != "" {
		legacy["in_reply_to_status_id_str"] = t.ReplyTo
	}
	return map[string]any{
		"entryId": "tweet-" + t.ID,
		"content": map[string]any{"itemContent": map[string]any{"tweet_results": map[string]any{"result": map[string]any{
			"__typename": "Tweet",
			"rest_id":    t.ID,
			"legacy":     legacy,
		}}}},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
