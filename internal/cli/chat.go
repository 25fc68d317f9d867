package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"paperchat/internal/app"
	"paperchat/internal/bootstrap"
	"paperchat/internal/rag"
)

var (
	chatUser string
	chatTopK int
)

var chatCmd = &cobra.Command{
	Use:   "chat [document-id]",
	Short: "Ask questions about a document interactively",
	Long: `Reads one question per line. Type /history to print the conversation
so far and /quit to leave. The conversation is not stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return runChat(ctx, cmd, a.ChatService, args[0])
		})
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "", "owner of the document")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of chunks to use (0 = configured default)")
	_ = chatCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(chatCmd)
}

type asker interface {
	Ask(ctx context.Context, input app.AskInput) (*rag.Answer, error)
}

func runChat(ctx context.Context, cmd *cobra.Command, chat asker, documentID string) error {
	var turns []rag.Turn
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			for _, t := range turns {
				cmd.Printf("%s: %s\n", t.Role, t.Text)
			}
			continue
		}

		answer, err := chat.Ask(ctx, app.AskInput{
			UserID:     chatUser,
			DocumentID: documentID,
			Question:   line,
			TopK:       chatTopK,
		})
		if err != nil {
			// Unknown documents end the session; anything else is reported
			// and the next question is read.
			if errors.Is(err, app.ErrDocumentNotFound) || errors.Is(err, context.Canceled) {
				return err
			}
			cmd.PrintErrln("error:", err)
			continue
		}
		turns = append(turns,
			rag.Turn{Role: rag.RoleUser, Text: line},
			rag.Turn{Role: rag.RoleAssistant, Text: answer.Answer},
		)
		cmd.Println(answer.Answer)
	}
}
