package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item is one generated article inside a digest. Items are immutable once
// received: the session appends them in arrival order and never mutates or
// reorders them.
type Item struct {
	ID            string            `json:"id"`
	Headline      string            `json:"headline"`
	Content       string            `json:"content"`
	DatePublished time.Time         `json:"date_published"`
	LeadSource    string            `json:"lead_source"`
	Sources       map[string]Source `json:"all_sources"`
	Insights      Insights          `json:"insights"`
	Media         []string          `json:"multimedia"`
}

// Insights is the structured analysis payload attached to an item: a summary
// plus one positive and one negative framing.
type Insights struct {
	Summary  string       `json:"summary"`
	Positive InsightPoint `json:"positive"`
	Negative InsightPoint `json:"negative"`
}

type InsightPoint struct {
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

// Source is a tagged variant over the two shapes a source entry arrives in:
// a bare URL string, or an object carrying a URL and a title. The backend
// mixes both freely, so decoding has to accept either.
type Source struct {
	URL   string
	Title string
}

// Titled reports whether the source carries a display title.
func (s Source) Titled() bool { return s.Title != "" }

func (s Source) MarshalJSON() ([]byte, error) {
	if !s.Titled() {
		return json.Marshal(s.URL)
	}
	return json.Marshal(struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}{URL: s.URL, Title: s.Title})
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		s.URL = raw
		s.Title = ""
		return nil
	}
	var obj struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("source entry is neither a URL string nor an object: %w", err)
	}
	s.URL = obj.URL
	s.Title = obj.Title
	return nil
}

// TrendingPost is one short social post from the trending feed. The feed is
// replaced wholesale on every delivery, never appended to.
type TrendingPost struct {
	ID                string    `json:"id"`
	AuthorDisplayName string    `json:"user_name"`
	AuthorHandle      string    `json:"user_screen_name"`
	Text              string    `json:"text"`
	CreatedAt         time.Time `json:"created_at"`
	LikeCount         int       `json:"like_count"`
	RepostCount       int       `json:"repost_count"`
	URL               string    `json:"url,omitempty"`
}

// Digest is one completed generation: the batch of items a single gen_daily
// or gen_question request produced. Digests are what the archive persists.
type Digest struct {
	ID        string    `json:"id"`
	Query     string    `json:"query,omitempty"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}
