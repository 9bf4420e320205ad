package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askText    string
	askSession string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the knowledge base",
	Long: `Retrieve the best articles for a question, compose an answer with its source
and related suggestions, and append the exchange to the chat log.

Examples:
  kbsearch ask -q "I forgot my password"
  kbsearch ask -q "how do I enable 2FA?" --session 5f0c... --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().StringVar(&askSession, "session", "", "session id (generated when empty)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, err := openEngine(ctx, GetConfig(), GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	resp, err := eng.answer.Answer(ctx, askSession, askText)
	if err != nil {
		return err
	}

	if askJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(resp.Answer)
	if resp.Source != "" {
		fmt.Printf("\nSource: %s", resp.Source)
		if resp.URL != "" {
			fmt.Printf(" (%s)", resp.URL)
		}
		fmt.Println()
	}
	if len(resp.Suggestions) > 0 {
		fmt.Println("\nRelated:")
		for _, s := range resp.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
	fmt.Printf("\nSession: %s\n", resp.SessionID)
	return nil
}
