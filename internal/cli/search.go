package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"kbsearch/internal/domain"
	"kbsearch/internal/usecase"
)

var (
	searchText     string
	searchLimit    int
	searchJSON     bool
	searchNoRerank bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the most relevant articles",
	Long: `Search articles by semantic similarity, then rerank the candidate pool when a
rerank model is configured.

Examples:
  kbsearch search -q "forgot password"
  kbsearch search -q "two factor" -k 3 --json
  kbsearch search -q "billing" --no-rerank`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "skip the reranking stage")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	eng, err := openEngine(ctx, cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	limit := cfg.Retrieve.Limit
	if searchLimit > 0 {
		limit = searchLimit
	}

	var scored []domain.ScoredArticle
	if searchNoRerank {
		scored, err = eng.retrieve.RetrieveWithoutRerank(ctx, searchText, limit)
	} else {
		scored, err = eng.retrieve.Retrieve(ctx, searchText, limit)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	results := usecase.ToResults(scored)

	if searchJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No relevant articles found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), searchText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s (score: %.2f) ---\n", i+1, r.Title, r.Score)
		if r.URL != "" {
			fmt.Println(r.URL)
		}
		fmt.Println(usecase.Excerpt(r.Text, 300))
		fmt.Println()
	}
	return nil
}
