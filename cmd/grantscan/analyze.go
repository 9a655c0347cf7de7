package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/grantscan/internal/config"
	"github.com/nao1215/grantscan/internal/model"
	"github.com/nao1215/grantscan/internal/relevance"
	"github.com/spf13/cobra"
)

// maxAnalyzeInput bounds the text read from stdin.
const maxAnalyzeInput = config.DefaultMaxBodySize

// errNoInput is returned when neither arguments nor stdin carry text.
var errNoInput = errors.New("no text to analyze (pass it as arguments or on stdin)")

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Score a text for relevance",
		Long: `Analyze scores free text with the same relevance scorer the scan uses and
prints the score, priority, recommendation and matched keywords.

The text is taken from the arguments, or read from stdin when no argument
is given. With --batch every non-empty stdin line is scored as a separate
title and the lines are printed best first.

Examples:
  # Score a single title
  grantscan analyze "Rural education grant for indigenous communities in Peru"

  # Score a call description saved in a file
  grantscan analyze --title "Water access program" < call.txt

  # Rank a list of titles
  grantscan analyze --batch < titles.txt`,
		RunE: runAnalyzeCmd,
	}

	cmd.Flags().Float64P("threshold", "t", config.DefaultThreshold,
		"Relevance threshold used for the relevant/not relevant verdict")
	cmd.Flags().String("title", "",
		"Title of the analyzed text; it weighs more than the body")
	cmd.Flags().BoolP("batch", "b", false,
		"Score each stdin line as a separate title and rank them")
	cmd.Flags().BoolP("json", "j", false,
		"Output the result as JSON")

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	threshold, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return err
	}
	title, err := cmd.Flags().GetString("title")
	if err != nil {
		return err
	}
	batch, err := cmd.Flags().GetBool("batch")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	scorer := relevance.NewScorer(relevance.WithThreshold(threshold))
	out := cmd.OutOrStdout()

	if batch {
		inputs, err := readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return errNoInput
		}
		results := scorer.BatchAnalyze(inputs)
		if jsonOutput {
			return writeJSON(out, batchJSON(results))
		}
		printBatch(out, results, threshold)
		return nil
	}

	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxAnalyzeInput))
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(title) == "" && strings.TrimSpace(text) == "" {
		return errNoInput
	}

	result := scorer.Analyze(title, "", text)
	if jsonOutput {
		return writeJSON(out, result)
	}
	printAnalysis(out, scorer, result)
	return nil
}

// readLines returns one scorer input per non-empty line.
func readLines(r io.Reader) ([]relevance.Input, error) {
	scanner := bufio.NewScanner(io.LimitReader(r, maxAnalyzeInput))
	inputs := make([]relevance.Input, 0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		inputs = append(inputs, relevance.Input{Title: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return inputs, nil
}

// batchEntry is the JSON form of one ranked batch line.
type batchEntry struct {
	Title          string              `json:"title"`
	Score          float64             `json:"relevance_score"`
	IsRelevant     bool                `json:"is_relevant"`
	Priority       model.PriorityLevel `json:"priority_level"`
	Recommendation string              `json:"recommendation"`
	Keywords       []string            `json:"keywords"`
}

// batchJSON converts ranked batch results for JSON output.
func batchJSON(results []relevance.BatchResult) []batchEntry {
	entries := make([]batchEntry, len(results))
	for i, r := range results {
		entries[i] = batchEntry{
			Title:          r.Input.Title,
			Score:          r.Result.Score,
			IsRelevant:     r.Result.IsRelevant,
			Priority:       r.Result.Priority,
			Recommendation: r.Result.Recommendation,
			Keywords:       r.Result.Keywords(),
		}
	}
	return entries
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printAnalysis prints one scorer result in human-readable form.
func printAnalysis(out io.Writer, scorer *relevance.Scorer, result relevance.Result) {
	fmt.Fprintln(out, "Relevance Analysis")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "\nScore:          %.2f\n", result.Score)
	fmt.Fprintf(out, "Relevant:       %s (threshold %.2f)\n", yesNo(result.IsRelevant), scorer.Threshold())
	fmt.Fprintf(out, "Priority:       %s\n", result.Priority)
	fmt.Fprintf(out, "Recommendation: %s\n", result.Recommendation)

	fmt.Fprintln(out, "\nCategory Scores:")
	for _, c := range scorer.Taxonomy().Categories() {
		fmt.Fprintf(out, "  %-14s  %6.2f\n", c, result.CategoryScores[c])
	}

	if keywords := result.Keywords(); len(keywords) > 0 {
		fmt.Fprintf(out, "\nMatched Keywords (%d):\n", len(keywords))
		for _, kw := range keywords {
			fmt.Fprintf(out, "  - %s\n", kw)
		}
	}

	if len(result.ExclusionFlags) > 0 {
		fmt.Fprintf(out, "\nExclusion Flags: %s\n", strings.Join(result.ExclusionFlags, ", "))
	}
}

// printBatch prints ranked batch results, best first.
func printBatch(out io.Writer, results []relevance.BatchResult, threshold float64) {
	fmt.Fprintf(out, "Ranked %d title(s) (threshold %.2f):\n\n", len(results), threshold)
	fmt.Fprintf(out, "  %-4s  %-7s  %-8s  %s\n", "#", "Score", "Priority", "Title")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for i, r := range results {
		marker := " "
		if r.Result.IsRelevant {
			marker = "*"
		}
		fmt.Fprintf(out, "  %-4d  %6.2f%s  %-8s  %s\n",
			i+1, r.Result.Score, marker, r.Result.Priority, model.TruncateRunes(r.Input.Title, 60))
	}
	fmt.Fprintln(out, "\n* relevant at the current threshold")
}

// yesNo formats a boolean for display.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
