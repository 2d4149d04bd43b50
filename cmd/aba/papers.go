package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/pkg/arxiv"
	"github.com/xhad/aba/pkg/citation"
	"github.com/xhad/aba/pkg/pipeline"
)

var (
	searchLimit int
	searchSort  string
	citeStyle   string
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Search, summarize, cite and chat with arXiv papers",
}

var papersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search arXiv",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPapersSearch,
}

var papersSummaryCmd = &cobra.Command{
	Use:   "summary <arxiv-id>",
	Short: "Summarize a paper in plain language",
	Args:  cobra.ExactArgs(1),
	RunE:  runPapersSummary,
}

var papersCiteCmd = &cobra.Command{
	Use:   "cite <arxiv-id>",
	Short: "Format a citation for a paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runPapersCite,
}

var papersChatCmd = &cobra.Command{
	Use:   "chat <arxiv-id>",
	Short: "Download a paper and ask questions about it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPapersChat,
}

func init() {
	papersSearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results (1-50)")
	papersSearchCmd.Flags().StringVar(&searchSort, "sort", "relevance", "relevance, updated or submitted")

	styles := make([]string, 0, len(citation.Styles()))
	for _, s := range citation.Styles() {
		styles = append(styles, s.String())
	}
	papersCiteCmd.Flags().StringVar(&citeStyle, "style", "APA", "citation style: "+strings.Join(styles, ", "))

	papersChatCmd.Flags().BoolVar(&showSources, "show-sources", false, "print the best matching chunks after each answer")

	papersCmd.AddCommand(papersSearchCmd, papersSummaryCmd, papersCiteCmd, papersChatCmd)
	rootCmd.AddCommand(papersCmd)
}

func runPapersSearch(cmd *cobra.Command, args []string) error {
	sortBy, err := arxiv.ParseSort(searchSort)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	client, err := newArxiv(cfg)
	if err != nil {
		return err
	}

	query := arxiv.Query{
		Text:       strings.Join(args, " "),
		MaxResults: searchLimit,
		Sort:       sortBy,
	}
	papers, err := withSpinner(os.Stdout, " Searching arXiv...", func() ([]models.Paper, error) {
		return client.Search(cmd.Context(), query)
	})
	if err != nil {
		return err
	}

	if len(papers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No papers found.")
		return nil
	}

	out := cmd.OutOrStdout()
	for i, p := range papers {
		successLine(out, "[%d] %s\n", i+1, p.Title)
		fmt.Fprintf(out, "    %s\n", strings.Join(p.Authors, ", "))
		fmt.Fprintf(out, "    %s  published %s\n", p.ID, p.Published.Format("2006-01-02"))
		fmt.Fprintf(out, "    %s\n\n", p.PDFURL)
	}
	return nil
}

func runPapersSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	client, err := newArxiv(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	paper, src, err := downloadPaper(cmd, client, args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.documentText(src.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.UserMessage(err), err)
	}

	summarizer, err := a.summarizer()
	if err != nil {
		return err
	}

	summary, err := withSpinner(os.Stdout, " Summarizing...", func() (string, error) {
		return summarizer.Summarize(ctx, text)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.UserMessage(err), err)
	}

	out := cmd.OutOrStdout()
	successLine(out, "%s\n\n", paper.Title)
	fmt.Fprintln(out, summary)
	return nil
}

func runPapersCite(cmd *cobra.Command, args []string) error {
	style := citation.ParseStyle(citeStyle)
	if style == citation.Unsupported {
		return fmt.Errorf("%w: %s", citation.ErrUnsupportedStyle, citeStyle)
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	client, err := newArxiv(cfg)
	if err != nil {
		return err
	}

	paper, err := client.Lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	formatted, err := citation.Format(paper, style)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatted)
	return nil
}

func runPapersChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	client, err := newArxiv(cfg)
	if err != nil {
		return err
	}

	_, src, err := downloadPaper(cmd, client, args[0])
	if err != nil {
		return err
	}
	return chatAbout(cmd.Context(), src)
}

func downloadPaper(cmd *cobra.Command, client *arxiv.Client, id string) (models.Paper, models.Source, error) {
	paper, err := client.Lookup(cmd.Context(), id)
	if err != nil {
		return models.Paper{}, models.Source{}, err
	}

	src, err := withSpinner(os.Stdout, " Downloading "+paper.ID, func() (models.Source, error) {
		return client.FetchPDF(cmd.Context(), paper)
	})
	if err != nil {
		return models.Paper{}, models.Source{}, fmt.Errorf("failed to download %s: %w", paper.ID, err)
	}
	return paper, src, nil
}
