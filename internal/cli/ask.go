package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"paperchat/internal/app"
	"paperchat/internal/bootstrap"
	"paperchat/internal/rag"
)

var (
	askUser  string
	askTopK  int
	askDebug bool
)

var askCmd = &cobra.Command{
	Use:   "ask [document-id] [question]",
	Short: "Ask one question about a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
			answer, err := a.ChatService.Ask(ctx, app.AskInput{
				UserID:     askUser,
				DocumentID: args[0],
				Question:   args[1],
				TopK:       askTopK,
			})
			if err != nil {
				return err
			}
			return printAnswer(cmd, answer, askDebug)
		})
	},
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "", "owner of the document")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to use (0 = configured default)")
	askCmd.Flags().BoolVar(&askDebug, "debug", false, "print retrieval details")
	_ = askCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(askCmd)
}

func printAnswer(cmd *cobra.Command, answer *rag.Answer, debug bool) error {
	cmd.Println(answer.Answer)
	if !debug {
		return nil
	}
	out, err := json.MarshalIndent(answer.Debug, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal debug info: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
