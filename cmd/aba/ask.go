package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/pkg/pipeline"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <file.pdf>",
	Short: "Load a PDF and ask questions about it",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "show-sources", false, "print the best matching chunks after each answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	return chatAbout(cmd.Context(), models.Source{
		Name: filepath.Base(args[0]),
		Data: data,
	})
}

// chatAbout ingests src into a fresh session and runs the question loop on
// the terminal.
func chatAbout(ctx context.Context, src models.Source) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.newSession()
	if err != nil {
		return err
	}
	defer session.Close()

	out := os.Stdout
	result, err := withSpinner(out, " Processing "+src.Name, func() (pipeline.IngestResult, error) {
		return session.Ingest(ctx, src)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.UserMessage(err), err)
	}
	printIngested(out, result)

	return chatLoop(ctx, os.Stdin, out, session, showSources)
}

func printIngested(w io.Writer, result pipeline.IngestResult) {
	successLine(w, "✓ Loaded %s: %d pages, %d chunks stored\n", result.Name, result.Pages, result.Stored)
	if result.Capped {
		statusLine(w, "  only the first %d of %d chunks were kept\n", result.Stored, result.Chunks)
	}
}

type asker interface {
	Ask(ctx context.Context, question string) (pipeline.Answer, error)
}

// chatLoop reads questions until quit, exit or end of input. Failed questions
// are reported and the loop carries on.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, session asker, sources bool) error {
	scanner := bufio.NewScanner(in)
	first := true

	for {
		if first {
			userPrompt(out, "\nEnter your question (or type 'quit' to exit): ")
		} else {
			userPrompt(out, "\nWhat's your next question (or type 'quit' to exit): ")
		}
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "quit", "exit":
			return nil
		case "":
			continue
		}
		first = false

		if err := ctx.Err(); err != nil {
			return err
		}

		answer, err := withSpinner(out, " Thinking...", func() (pipeline.Answer, error) {
			return session.Ask(ctx, question)
		})
		if err != nil {
			if answer.Text != "" {
				assistantPrompt(out, "\nANSWER: %q\n", answer.Text)
			}
			errorLine(out, "%s\n", pipeline.UserMessage(err))
			continue
		}

		fmt.Fprintf(out, "\nQUESTION: %q\n", question)
		assistantPrompt(out, "ANSWER: %q\n", answer.Text)

		if sources && len(answer.Sources) > 0 {
			fmt.Fprintln(out, "\nFIRST DOCUMENTS BY RELEVANCE:")
			for _, r := range answer.Sources {
				fmt.Fprintf(out, "    [%0.4f] \"%s ...\"\n", r.Score, preview(r.Chunk.Text, 84))
			}
		}
	}
}
