package domain

import "time"

// Article is one knowledge-base entry keyed by the source system's id.
type Article struct {
	ID          string    `json:"article_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	LastUpdated time.Time `json:"last_updated"`
}

// EmbeddingText is the text an article's embedding is derived from.
func (a Article) EmbeddingText() string {
	if a.Content == "" {
		return a.Title
	}
	return a.Title + "\n\n" + a.Content
}

// SameText reports whether two versions of an article would embed identically.
func (a Article) SameText(b Article) bool {
	return a.Title == b.Title && a.Content == b.Content
}

// EmbeddedArticle pairs an article with its stored vector.
type EmbeddedArticle struct {
	Article Article
	Vector  []float32
}

type ScoredArticle struct {
	Article Article
	Score   float64
}

// Articles strips scores, keeping order.
func Articles(scored []ScoredArticle) []Article {
	if len(scored) == 0 {
		return nil
	}
	out := make([]Article, len(scored))
	for i, s := range scored {
		out[i] = s.Article
	}
	return out
}

// ChatRecord is one question/answer exchange. Append-only.
type ChatRecord struct {
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
}

type Stats struct {
	Articles int `json:"articles"`
	Embedded int `json:"embedded"`
	Chats    int `json:"chats"`
}

// SyncResult summarises one ingestion run.
type SyncResult struct {
	Received   int
	Synced     int
	Embedded   int
	Skipped    int
	Generation uint64
	Errors     []string
}

// Response is what the answer layer hands back to a chat caller.
type Response struct {
	Answer      string   `json:"answer"`
	Source      string   `json:"source,omitempty"`
	URL         string   `json:"url,omitempty"`
	Suggestions []string `json:"suggestions"`
	SessionID   string   `json:"session_id,omitempty"`
}
