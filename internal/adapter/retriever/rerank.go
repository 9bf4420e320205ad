package retriever

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"
	"time"

	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var rerankPrompt = template.Must(template.New("rerank_prompt.txt").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(promptTemplates, "templates/rerank_prompt.txt"))

// SemanticOnly keeps the semantic order. It is the reranker used when no
// generative model is configured.
type SemanticOnly struct{}

func NewSemanticOnly() *SemanticOnly {
	return &SemanticOnly{}
}

// Rerank returns the pool truncated to limit.
func (SemanticOnly) Rerank(_ context.Context, _ string, pool []domain.ScoredArticle, limit int) []domain.ScoredArticle {
	return truncate(pool, limit)
}

func (SemanticOnly) Name() string {
	return "semantic"
}

// ModelBacked asks a generative model to pick and order the most relevant
// pool entries. Any failure falls back to the semantic order.
type ModelBacked struct {
	llm          port.LLM
	opts         port.GenerateOptions
	timeout      time.Duration
	excerptChars int
	logger       *slog.Logger
}

// NewModelBacked creates a model-backed reranker. A zero timeout means 30s.
func NewModelBacked(llm port.LLM, opts port.GenerateOptions, timeout time.Duration, excerptChars int, logger *slog.Logger) *ModelBacked {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if excerptChars <= 0 {
		excerptChars = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelBacked{
		llm:          llm,
		opts:         opts,
		timeout:      timeout,
		excerptChars: excerptChars,
		logger:       logger,
	}
}

func (m *ModelBacked) Name() string {
	return "model:" + m.llm.ModelName()
}

// Rerank never fails. The semantic-order pool truncated to limit is returned
// whenever the model cannot produce a usable selection.
func (m *ModelBacked) Rerank(ctx context.Context, query string, pool []domain.ScoredArticle, limit int) []domain.ScoredArticle {
	if len(pool) == 0 || limit <= 0 {
		return nil
	}

	picked, err := m.selectIndices(ctx, query, pool, limit)
	if err != nil {
		m.logger.Warn("rerank fallback to semantic order",
			"model", m.llm.ModelName(),
			"pool", len(pool),
			"error", err)
		return truncate(pool, limit)
	}

	out := make([]domain.ScoredArticle, len(picked))
	for i, idx := range picked {
		out[i] = pool[idx]
	}
	return out
}

func (m *ModelBacked) selectIndices(ctx context.Context, query string, pool []domain.ScoredArticle, limit int) ([]int, error) {
	prompt, err := m.buildPrompt(query, pool, limit)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.llm.Generate(ctx, prompt, m.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
	}
	if strings.TrimSpace(resp) == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrRerankUnavailable)
	}

	picked := ParseSelection(resp, len(pool), limit)
	if len(picked) == 0 {
		return nil, fmt.Errorf("%w: no usable indices in %q", domain.ErrRerankUnavailable, clip(resp, 80))
	}
	return picked, nil
}

type promptEntry struct {
	Title   string
	Excerpt string
}

func (m *ModelBacked) buildPrompt(query string, pool []domain.ScoredArticle, limit int) (string, error) {
	entries := make([]promptEntry, len(pool))
	for i, p := range pool {
		entries[i] = promptEntry{
			Title:   p.Article.Title,
			Excerpt: clip(p.Article.Content, m.excerptChars),
		}
	}

	var buf bytes.Buffer
	err := rerankPrompt.Execute(&buf, struct {
		Query    string
		Articles []promptEntry
		Limit    int
	}{
		Query:    query,
		Articles: entries,
		Limit:    limit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render rerank prompt: %w", err)
	}
	return buf.String(), nil
}

// ParseSelection turns a comma-separated list of 1-based indices into
// zero-based pool positions. Tokens that are not integers, fall outside the
// pool or repeat an earlier index are dropped. Order is preserved and the
// result is truncated to limit.
func ParseSelection(resp string, poolSize, limit int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, tok := range strings.Split(resp, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			continue
		}
		idx := n - 1
		if idx < 0 || idx >= poolSize || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncate(pool []domain.ScoredArticle, limit int) []domain.ScoredArticle {
	if limit <= 0 || len(pool) == 0 {
		return nil
	}
	if len(pool) > limit {
		return pool[:limit]
	}
	return pool
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

