package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"kbsearch/config"
	"kbsearch/internal/adapter/embedding"
	"kbsearch/internal/adapter/store"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
	"kbsearch/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Path to the data directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./kb -q \"query\"")
		fmt.Println("\nShows raw similarity scores for the top matches, before the relevance")
		fmt.Println("threshold and reranking are applied, to help tune retrieve.relevance_threshold.")
		os.Exit(1)
	}
	if *topK <= 0 {
		fmt.Fprintf(os.Stderr, "-k must be positive, got %d\n", *topK)
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.Open(cfg.Store.Driver, cfg.StoreDBPath(*dir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}

	index := vectorindex.New()
	gen, err := usecase.LoadIndex(ctx, st, index)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Index load failed: %v\n", err)
		os.Exit(1)
	}
	if gen.Len() == 0 {
		fmt.Fprintln(os.Stderr, "No embeddings - run 'kbsearch sync' first")
		os.Exit(1)
	}

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Embeddings indexed: %d\n", gen.Len())
	fmt.Printf("Model: %s (%s)\n", embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", embedder.Dimension())
	fmt.Printf("Threshold: %.2f\n", cfg.Retrieve.RelevanceThreshold)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	queryVec, err := embedder.Embed(ctx, []string{*query})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}

	results, err := gen.Search(queryVec[0], *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(results))

	for i, r := range results {
		preview := usecase.Excerpt(strings.ReplaceAll(r.Article.Content, "\n", " "), 150)
		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating(r.Score), r.Score, r.Article.Title)
		fmt.Printf("   %s\n\n", preview)
	}

	m, ok := summarize(results, cfg.Retrieve.RelevanceThreshold)
	fmt.Println(strings.Repeat("=", 70))
	if !ok {
		fmt.Println("No matches.")
		return
	}
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", m.average)
	fmt.Printf("  Top-1 similarity:   %.3f\n", m.top)
	fmt.Printf("  Above threshold:    %d/%d\n", m.above, m.total)

	if m.average > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if m.average > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or a re-sync")
	}
}

type metrics struct {
	average float64
	top     float64
	above   int
	total   int
}

// summarize reports false when there is nothing to average.
func summarize(results []domain.ScoredArticle, threshold float64) (metrics, bool) {
	if len(results) == 0 {
		return metrics{}, false
	}
	m := metrics{top: results[0].Score, total: len(results)}
	sum := 0.0
	for _, r := range results {
		sum += r.Score
		if r.Score >= threshold {
			m.above++
		}
	}
	m.average = sum / float64(len(results))
	return m, true
}

func rating(similarity float64) string {
	switch {
	case similarity > 0.7:
		return "HIGH"
	case similarity > 0.5:
		return "GOOD"
	case similarity > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}
