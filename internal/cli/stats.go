package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"kbsearch/internal/domain"
	"kbsearch/internal/usecase"
)

var (
	statsJSON  bool
	statsChats int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	statsCmd.Flags().IntVar(&statsChats, "chats", 0, "also list the N most recent chat records")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	eng, err := openEngine(ctx, cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	var stats domain.Stats
	if stats.Articles, err = eng.store.CountArticles(ctx); err != nil {
		return err
	}
	if stats.Embedded, err = eng.store.CountEmbedded(ctx); err != nil {
		return err
	}
	if stats.Chats, err = eng.store.CountChats(ctx); err != nil {
		return err
	}
	gen := eng.index.Current()

	var recent []domain.ChatRecord
	if statsChats > 0 {
		if recent, err = eng.store.RecentChats(ctx, statsChats); err != nil {
			return err
		}
	}

	if statsJSON {
		output, _ := json.MarshalIndent(struct {
			domain.Stats
			Generation  uint64              `json:"generation"`
			Dimension   int                 `json:"dimension"`
			Model       string              `json:"embedding_model"`
			Reranker    string              `json:"reranker"`
			RecentChats []domain.ChatRecord `json:"recent_chats,omitempty"`
		}{stats, gen.Number(), eng.embedder.Dimension(), eng.embedder.ModelName(), eng.retrieve.Reranker().Name(), recent}, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Store:            %s (%s)\n", cfg.StoreDBPath(GetRootDir()), cfg.Store.Driver)
	fmt.Printf("Articles:         %d\n", stats.Articles)
	fmt.Printf("Embedded:         %d\n", stats.Embedded)
	fmt.Printf("Chat records:     %d\n", stats.Chats)
	fmt.Printf("Index generation: %d (%d vectors, dim %d)\n", gen.Number(), gen.Len(), gen.Dim())
	fmt.Printf("Embedding model:  %s\n", eng.embedder.ModelName())
	fmt.Printf("Reranker:         %s\n", eng.retrieve.Reranker().Name())

	if len(recent) > 0 {
		fmt.Println()
		fmt.Println("Recent chats:")
		for _, rec := range recent {
			fmt.Printf("  [%s] %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), rec.UserMessage)
			fmt.Printf("      -> %s\n", usecase.Excerpt(rec.BotResponse, 80))
		}
	}
	return nil
}
