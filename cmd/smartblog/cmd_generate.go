package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"smartblog/internal/generation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var grammarText string

// generateCmd groups the streaming generation commands
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Stream a summary or a grammar fix from the server",
}

var generateSummaryCmd = &cobra.Command{
	Use:   "summary [id]",
	Short: "Stream a summary of a post's text",
	Args:  cobra.ExactArgs(1),
	RunE:  generateSummary,
}

var generateGrammarCmd = &cobra.Command{
	Use:   "grammar",
	Short: "Print a grammar-fixed version of --text",
	Long: `Sends --text to the grammar endpoint and prints the corrected text once
the stream completes.

Example:
  smartblog generate grammar --text "this are wrong"`,
	RunE: generateGrammar,
}

func init() {
	generateGrammarCmd.Flags().StringVar(&grammarText, "text", "", "Text to correct (required)")
	generateGrammarCmd.MarkFlagRequired("text")

	generateCmd.AddCommand(generateSummaryCmd)
	generateCmd.AddCommand(generateGrammarCmd)
}

// writerOutput streams summary fragments to a writer.
type writerOutput struct {
	w io.Writer
	n int
}

func (o *writerOutput) Reset() { o.n = 0 }

func (o *writerOutput) Append(fragment string) {
	fmt.Fprint(o.w, fragment)
	o.n++
}

// textSurface treats a whole string as the selection.
type textSurface struct {
	text  string
	fixed string
}

func (s *textSurface) SelectedText() (string, bool) {
	return s.text, strings.TrimSpace(s.text) != ""
}

func (s *textSurface) ReplaceSelection(text string) {
	s.fixed = text
}

func generateSummary(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := requireSession(a); err != nil {
		return err
	}
	if !a.Select(args[0]) {
		return fmt.Errorf("post %s not found", args[0])
	}

	out := &writerOutput{w: cmd.OutOrStdout()}
	err = a.Summarize(ctx, out)
	if out.n > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	switch {
	case errors.Is(err, generation.ErrEmptyInput):
		return fmt.Errorf("post %s has no text to summarize", args[0])
	case err != nil:
		return fmt.Errorf("summary failed: %w", err)
	}
	logger.Debug("Summary streamed", zap.Int("fragments", out.n))
	return nil
}

func generateGrammar(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	surface := &textSurface{text: grammarText}
	if err := a.FixGrammar(ctx, surface); err != nil {
		return fmt.Errorf("grammar fix failed: %w", err)
	}
	if surface.fixed == "" {
		fmt.Fprintln(cmd.OutOrStdout(), grammarText)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), surface.fixed)
	return nil
}
