package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paperchat/internal/pkg/pdfextract"
	"paperchat/internal/splitter"
)

var (
	splitSize    int
	splitOverlap int
	splitJSON    bool
)

var splitCmd = &cobra.Command{
	Use:   "split [file.pdf]",
	Short: "Extract a local PDF and print its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

func init() {
	splitCmd.Flags().IntVar(&splitSize, "size", splitter.DefaultChunkSize, "chunk size in characters")
	splitCmd.Flags().IntVar(&splitOverlap, "overlap", splitter.DefaultChunkOverlap, "overlap between chunks in characters")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "output chunks as JSON")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	if splitSize <= 0 || splitOverlap < 0 || splitOverlap >= splitSize {
		return fmt.Errorf("overlap must be in [0, size), got size=%d overlap=%d", splitSize, splitOverlap)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file failed: %w", err)
	}
	text, err := pdfextract.ExtractText(data)
	if err != nil {
		return err
	}

	s := splitter.New(splitter.WithChunkSize(splitSize), splitter.WithOverlap(splitOverlap))
	chunks := s.Split(text)

	if splitJSON {
		out, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal chunks: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Printf("%d chunks (%d characters)\n", len(chunks), len([]rune(text)))
	for i, c := range chunks {
		cmd.Printf("\n[%d] %s\n", i+1, c)
	}
	return nil
}
