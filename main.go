package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/insightdelivered/card-statement-ledger/internal/api"
	"github.com/insightdelivered/card-statement-ledger/internal/config"
	"github.com/insightdelivered/card-statement-ledger/internal/extractor"
	"github.com/insightdelivered/card-statement-ledger/internal/logger"
	"github.com/insightdelivered/card-statement-ledger/internal/metrics"
	"github.com/insightdelivered/card-statement-ledger/internal/models"
	"github.com/insightdelivered/card-statement-ledger/internal/parser"
	"github.com/insightdelivered/card-statement-ledger/internal/pipeline"
	"github.com/insightdelivered/card-statement-ledger/internal/writer"
)

const version = "1.2.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds state shared by subcommands once the config is loaded.
type cli struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "card-ledger",
		Short: "Extract and categorize credit card statement transactions",
		Long: `Card Ledger reads credit card statement PDFs from several issuers,
extracts every transaction, and categorizes each one into a single ledger
with a configurable merchant rule table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logger.New(cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (yaml, toml or json)")

	root.AddCommand(
		c.extractCmd(),
		c.serveCmd(),
		c.categorizeCmd(),
		c.rulesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version and exit",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "card-ledger v%s\n", version)
			},
		},
	)
	return root
}

func (c *cli) pipelineConfig() (pipeline.Config, error) {
	pc, err := c.cfg.PipelineConfig()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("build pipeline: %w", err)
	}
	return pc, nil
}

func (c *cli) extractCmd() *cobra.Command {
	var (
		card            string
		issuerName      string
		billingYear     int
		includePayments bool
		outputPath      string
		asJSON          bool
		noHeader        bool
	)

	cmd := &cobra.Command{
		Use:   "extract <statement.pdf> [statement2.pdf ...]",
		Short: "Extract a categorized ledger from statement PDFs",
		Long: `Extract parses each statement, categorizes its transactions and writes
one ledger in upload order. Files ending in .txt are read as already
extracted text, with pages separated by "---PAGE_BREAK---" lines.`,
		Example: `  # Auto-detect the issuer and print CSV
  card-ledger extract venture_march.pdf

  # Several cards into one file, with payments shown as credits
  card-ledger extract --include-payments --output ledger.csv jan.pdf feb.pdf

  # Statement without a printed closing date
  card-ledger extract --billing-year 2024 --card "Citi Double Cash" March2024.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := c.pipelineConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("include-payments") {
				pc.IncludePayments = includePayments
			}

			var issuer models.IssuerType
			if issuerName != "" && !strings.EqualFold(issuerName, "auto") {
				if issuer, err = parser.ParseIssuer(issuerName); err != nil {
					return err
				}
			}

			docs := make([]pipeline.Document, len(args))
			for i, path := range args {
				docs[i] = c.loadDocument(path)
				docs[i].Card = card
				docs[i].Issuer = issuer
				docs[i].BillingYear = billingYear
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := pipeline.New(pc, c.log, nil).Run(ctx, docs)
			if err != nil {
				return err
			}

			printSummary(cmd.ErrOrStderr(), res)

			write := func(out io.Writer) error {
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(res); err != nil {
						return fmt.Errorf("write JSON: %w", err)
					}
					return nil
				}
				w := &writer.CSVWriter{IncludeHeader: !noHeader}
				return w.Write(out, res.Transactions)
			}

			if outputPath == "" {
				if err := write(cmd.OutOrStdout()); err != nil {
					return err
				}
			} else if err := writeFile(outputPath, write); err != nil {
				return err
			}

			if res.Errors == len(res.Files) {
				return fmt.Errorf("all %d statement(s) failed", res.Errors)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&card, "card", "", "card label for every transaction (defaults to the issuer name)")
	f.StringVar(&issuerName, "issuer", "", "issuer layout: capital_one, barclays, bank_of_america, citi, discover, chase, amex, generic (auto-detected if omitted)")
	f.IntVar(&billingYear, "billing-year", 0, "closing year of the billing period; overrides the statement header")
	f.BoolVar(&includePayments, "include-payments", false, "emit card payments as negative transactions")
	f.StringVarP(&outputPath, "output", "o", "", "output file (defaults to stdout)")
	f.BoolVar(&asJSON, "json", false, "write the full ledger result as JSON instead of CSV")
	f.BoolVar(&noHeader, "no-header", false, "omit the CSV header row")
	return cmd
}

// loadDocument reads one input. Read failures are attached to the
// document so the remaining files are still processed.
func (c *cli) loadDocument(path string) pipeline.Document {
	doc := pipeline.Document{Name: filepath.Base(path)}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			doc.Err = fmt.Errorf("read %s: %w", path, err)
			return doc
		}
		doc.Pages = extractor.SplitPages(string(data))
	case ".pdf":
		pages, err := extractor.ExtractFile(path)
		switch {
		case errors.Is(err, extractor.ErrNoText):
			c.log.Warn().Str("source", doc.Name).Msg("no readable text in PDF; it may be a scanned image")
		case err != nil:
			doc.Err = err
		default:
			doc.Pages = pages
		}
	default:
		doc.Err = fmt.Errorf("expected .pdf or .txt file, got %q", filepath.Ext(path))
	}
	return doc
}

// writeFile creates path, writes to it and reports the close error, which
// is where a failed flush to disk surfaces.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file %q: %w", path, err)
	}
	return nil
}

func printSummary(w io.Writer, res *pipeline.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tISSUER\tCARD\tTXNS\tSKIPPED\tDROPPED\tSTATUS")
	for _, f := range res.Files {
		status := "ok"
		switch {
		case f.Failed():
			status = "error: " + f.Err
		case f.Reconciled != nil && !*f.Reconciled:
			status = "ok (summary mismatch)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", f.Source, f.Issuer, f.Card, f.Count, f.Skipped, f.Dropped, status)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal spend %s, credits %s", res.TotalSpend.StringFixed(2), res.TotalCredits.StringFixed(2))
	if res.Budget.IsPositive() {
		fmt.Fprintf(w, ", budget %s, remaining %s", res.Budget.StringFixed(2), res.Remaining.StringFixed(2))
	}
	fmt.Fprintln(w)
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := c.pipelineConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = c.cfg.Server.Address
			}

			reg := prometheus.NewRegistry()
			collector := metrics.NewPrometheusCollector("card_ledger")
			if err := collector.Register(reg); err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			srv := api.New(pipeline.New(pc, c.log, collector), api.Options{
				Version:     version,
				BodyLimitMB: c.cfg.Server.BodyLimitMB,
				Gatherer:    reg,
				Logger:      c.log,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Listen(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.address from config)")
	return cmd
}

func (c *cli) categorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categorize <description> [description ...]",
		Short: "Show the category pair for merchant descriptions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := c.pipelineConfig()
			if err != nil {
				return err
			}
			cat := pipeline.New(pc, zerolog.Nop(), nil).Categorizer()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, desc := range args {
				category, sub := cat.Categorize(desc)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", desc, category, sub)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the effective categorization rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := c.pipelineConfig()
			if err != nil {
				return err
			}
			rules := pipeline.New(pc, zerolog.Nop(), nil).Categorizer().Rules()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tCATEGORY\tSUBCATEGORY\tMATCHER")
			for _, v := range api.RuleViews(rules) {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.Position, v.Name, v.Category, v.Subcategory, v.Matcher)
			}
			return tw.Flush()
		},
	}
}
