package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"kbsearch/internal/domain"
)

// Record is one ingestion record as handed over by the document source.
type Record struct {
	ArticleID   string `json:"article_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	LastUpdated string `json:"last_updated"`
}

// LoadResult holds the articles decoded from one or more files and the
// records that could not be used.
type LoadResult struct {
	Articles []domain.Article
	Skipped  []string
}

// Loader decodes ingestion files into articles.
type Loader struct {
	stripHTML bool
}

func NewLoader(stripHTML bool) *Loader {
	return &Loader{stripHTML: stripHTML}
}

// LoadFiles decodes every file and concatenates the results in file order.
func (l *Loader) LoadFiles(paths []string) (*LoadResult, error) {
	result := &LoadResult{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r, err := l.Load(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		result.Articles = append(result.Articles, r.Articles...)
		for _, s := range r.Skipped {
			result.Skipped = append(result.Skipped, path+": "+s)
		}
	}
	return result, nil
}

// Load accepts either a JSON array of records or an object with a
// "results" array.
func (l *Loader) Load(r io.Reader) (*LoadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{Articles: make([]domain.Article, 0, len(records))}
	for i, rec := range records {
		article, err := l.toArticle(rec)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		result.Articles = append(result.Articles, article)
	}
	return result, nil
}

func decodeRecords(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse records: %w", err)
		}
		return records, nil
	}

	var wrapped struct {
		Results []Record `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	return wrapped.Results, nil
}

func (l *Loader) toArticle(rec Record) (domain.Article, error) {
	id := strings.TrimSpace(rec.ArticleID)
	if id == "" {
		return domain.Article{}, fmt.Errorf("missing article_id")
	}

	ts, err := ParseTimestamp(rec.LastUpdated)
	if err != nil {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, err)
	}

	content := rec.Content
	if l.stripHTML {
		content = StripHTML(content)
	}

	return domain.Article{
		ID:          id,
		Title:       strings.TrimSpace(rec.Title),
		Content:     content,
		URL:         strings.TrimSpace(rec.URL),
		LastUpdated: ts,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses ISO-8601 timestamps with or without a zone. Values
// without a zone are taken as UTC. An empty string is the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised last_updated %q", s)
}

var (
	tagPattern   = regexp.MustCompile(`<[^<]+?>`)
	spacePattern = regexp.MustCompile(`[\s\p{Z}]+`)
)

// StripHTML removes markup tags, decodes entities and collapses whitespace.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
