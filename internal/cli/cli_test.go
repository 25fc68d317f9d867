package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperchat/internal/app"
	"paperchat/internal/pkg/jwtutil"
	"paperchat/internal/rag"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestSplitCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "", "split", filepath.Join(t.TempDir(), "missing.pdf"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file failed")
}

func TestSplitCmd_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a pdf"), 0o644))

	_, err := execute(t, "", "split", path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, rag.ErrExtraction))
}

func TestSplitCmd_InvalidOverlap(t *testing.T) {
	defer func() { splitSize, splitOverlap = 1000, 200 }()

	_, err := execute(t, "", "split", "--size", "100", "--overlap", "100", "x.pdf")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap must be in")
}

func TestTokenCmd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, ".env"))
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "config.toml"))
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "", "token", "alice")
	require.NoError(t, err)

	claims, err := jwtutil.ParseToken("cli-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID())
}

type scriptedAsker struct {
	inputs []app.AskInput
	err    error
}

func (s *scriptedAsker) Ask(_ context.Context, input app.AskInput) (*rag.Answer, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return &rag.Answer{Answer: "answer to " + input.Question}, nil
}

func TestRunChat(t *testing.T) {
	chatUser = "alice"
	defer func() { chatUser = "" }()

	buf := new(bytes.Buffer)
	chatCmd.SetOut(buf)
	chatCmd.SetErr(buf)
	chatCmd.SetIn(strings.NewReader("refund?\n\nshipping?\n/history\n/quit\nignored\n"))
	defer chatCmd.SetIn(nil)

	asker := &scriptedAsker{}
	require.NoError(t, runChat(context.Background(), chatCmd, asker, "doc-1"))

	require.Len(t, asker.inputs, 2)
	assert.Equal(t, "alice", asker.inputs[0].UserID)
	assert.Equal(t, "doc-1", asker.inputs[0].DocumentID)
	out := buf.String()
	assert.Contains(t, out, "answer to refund?")
	assert.Contains(t, out, "user: shipping?")
	assert.Contains(t, out, "assistant: answer to shipping?")
	assert.NotContains(t, out, "ignored")
}

func TestRunChat_ReportsErrorsAndContinues(t *testing.T) {
	buf := new(bytes.Buffer)
	chatCmd.SetOut(buf)
	chatCmd.SetErr(buf)
	chatCmd.SetIn(strings.NewReader("refund?\n"))
	defer chatCmd.SetIn(nil)

	asker := &scriptedAsker{err: rag.NewError(rag.KindGeneration, "generate", context.DeadlineExceeded)}
	require.NoError(t, runChat(context.Background(), chatCmd, asker, "doc-1"))
	assert.Contains(t, buf.String(), "error: generate: generation")
}

func TestRunChat_UnknownDocument(t *testing.T) {
	chatCmd.SetOut(new(bytes.Buffer))
	chatCmd.SetIn(strings.NewReader("refund?\n"))
	defer chatCmd.SetIn(nil)

	err := runChat(context.Background(), chatCmd, &scriptedAsker{err: app.ErrDocumentNotFound}, "doc-1")
	assert.ErrorIs(t, err, app.ErrDocumentNotFound)
}
