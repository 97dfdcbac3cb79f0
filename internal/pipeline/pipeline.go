// Package pipeline turns a batch of uploaded statements into one
// categorized ledger. Each file is parsed by its own worker; a file that
// fails is reported in its FileResult and never affects its siblings.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/card-statement-ledger/internal/categorizer"
	"github.com/insightdelivered/card-statement-ledger/internal/logger"
	"github.com/insightdelivered/card-statement-ledger/internal/metrics"
	"github.com/insightdelivered/card-statement-ledger/internal/models"
	"github.com/insightdelivered/card-statement-ledger/internal/parser"
)

// DefaultWorkers is used when Config.Workers is not positive.
const DefaultWorkers = 4

// Config drives one pipeline. The zero value is usable: default rules,
// payments excluded, year inferred from each statement.
type Config struct {
	Budget decimal.Decimal

	// Rules replaces the built-in rule table when non-nil.
	Rules         []categorizer.Rule
	ExtraRules    []categorizer.Rule
	ExtraPosition categorizer.Position

	// BillingYearHint applies to documents that carry no year of their own
	// and print no billing period.
	BillingYearHint int
	IncludePayments bool
	Workers         int
	MaxContinuation int
	Debug           bool
}

// Document is one uploaded statement, already split into page strings.
type Document struct {
	Name string
	// Card labels every transaction; empty means the issuer name.
	Card string
	// Issuer forces a layout; empty means detect from content and name.
	Issuer models.IssuerType
	// BillingYear overrides the year read from the statement header.
	BillingYear int
	Pages       []string
	// Err marks a document that could not be read; it is reported as a
	// failed file without parsing.
	Err error
}

// FileResult summarizes one document of the batch.
type FileResult struct {
	Source     string            `json:"source"`
	Card       string            `json:"card"`
	Issuer     models.IssuerType `json:"issuer"`
	Count      int               `json:"count"`
	Payments   int               `json:"payments"`
	Skipped    int               `json:"skipped"`
	Dropped    int               `json:"dropped"`
	Reconciled *bool             `json:"reconciled,omitempty"`
	Err        string            `json:"error,omitempty"`

	Info *models.StatementInfo `json:"-"`
}

// Failed reports whether the file could not be processed.
func (f FileResult) Failed() bool {
	return f.Err != ""
}

// Result is the assembled ledger.
type Result struct {
	Files        []FileResult         `json:"files"`
	Transactions []models.Transaction `json:"transactions"`
	Budget       decimal.Decimal      `json:"budget"`
	TotalSpend   decimal.Decimal      `json:"totalSpend"`
	TotalCredits decimal.Decimal      `json:"totalCredits"`
	Remaining    decimal.Decimal      `json:"remaining"`
	Errors       int                  `json:"errors"`
}

// Pipeline is safe for concurrent use; Run may be called from many
// request handlers at once.
type Pipeline struct {
	cfg     Config
	cat     *categorizer.Categorizer
	log     zerolog.Logger
	metrics metrics.Collector
}

// New builds a pipeline. A nil collector disables metrics.
func New(cfg Config, log zerolog.Logger, collector metrics.Collector) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	base := categorizer.NewDefault()
	if cfg.Rules != nil {
		base = categorizer.New(cfg.Rules)
	}
	cat := base
	if len(cfg.ExtraRules) > 0 {
		cat = base.WithRules(cfg.ExtraRules, cfg.ExtraPosition)
	}

	return &Pipeline{cfg: cfg, cat: cat, log: log, metrics: collector}
}

// Categorizer returns the effective categorizer, extra rules included.
func (p *Pipeline) Categorizer() *categorizer.Categorizer {
	return p.cat
}

// IncludingPayments returns a pipeline sharing p's rules with the payment
// policy overridden.
func (p *Pipeline) IncludingPayments(include bool) *Pipeline {
	cp := *p
	cp.cfg.IncludePayments = include
	return &cp
}

// Config returns the pipeline configuration after defaults.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run processes docs and returns results in upload order. If ctx is
// cancelled, documents not yet started are reported as failed and the
// context error is returned alongside the partial result. A logger carried
// by ctx (see logger.WithContext) replaces the pipeline's own.
func (p *Pipeline) Run(ctx context.Context, docs []Document) (*Result, error) {
	results := make([]FileResult, len(docs))
	log := logger.FromContextOr(ctx, p.log)

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			results[i] = FileResult{Source: doc.Name, Card: doc.Card, Issuer: doc.Issuer, Err: err.Error()}
			continue
		}
		i, doc := i, doc
		g.Go(func() error {
			results[i] = p.processFile(ctx, log, doc)
			return nil
		})
	}
	_ = g.Wait()

	res := p.assemble(results)
	log.Info().
		Int("files", len(res.Files)).
		Int("transactions", len(res.Transactions)).
		Int("errors", res.Errors).
		Str("total_spend", res.TotalSpend.StringFixed(2)).
		Msg("ledger assembled")

	return res, ctx.Err()
}

func (p *Pipeline) processFile(ctx context.Context, log zerolog.Logger, doc Document) (fr FileResult) {
	start := time.Now()
	fr = FileResult{Source: doc.Name, Card: doc.Card, Issuer: doc.Issuer}
	log = log.With().Str("source", doc.Name).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			fr.Err = fmt.Sprintf("internal error: %v", rec)
			log.Error().Str("panic", fmt.Sprint(rec)).Bytes("stack", debug.Stack()).Msg("statement worker panicked")
			p.metrics.RecordFile(string(fr.Issuer), metrics.StatusError, time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		fr.Err = err.Error()
		return fr
	}
	if doc.Err != nil {
		return p.fail(log, fr, start, doc.Err)
	}

	issuer := doc.Issuer
	if issuer == "" {
		issuer = parser.Detect(doc.Name, doc.Pages)
	}
	fr.Issuer = issuer

	sp, err := parser.New(issuer, parser.Options{
		Card:            doc.Card,
		SourceFile:      doc.Name,
		BillingYear:     doc.BillingYear,
		BillingYearHint: p.cfg.BillingYearHint,
		IncludePayments: p.cfg.IncludePayments,
		MaxContinuation: p.cfg.MaxContinuation,
		Debug:           p.cfg.Debug,
	})
	if err != nil {
		return p.fail(log, fr, start, err)
	}
	if fr.Card == "" {
		fr.Card = sp.IssuerName()
	}
	log = log.With().Str("issuer", string(issuer)).Str("card", fr.Card).Logger()

	info, err := sp.Parse(doc.Pages)
	if err != nil {
		return p.fail(log, fr, start, fmt.Errorf("parse %s: %w", doc.Name, err))
	}
	for i := range info.Transactions {
		info.Transactions[i].Card = fr.Card
	}
	info.Card = fr.Card
	info.Transactions = categorizer.Apply(p.cat, info.Transactions)

	fr.Info = info
	fr.Count = len(info.Transactions)
	fr.Payments = info.Payments
	fr.Skipped = info.Skipped
	fr.Dropped = info.Dropped

	p.recordLines(string(issuer), info)
	p.metrics.RecordTransactions(string(issuer), fr.Count)

	if matched, ok := reconcile(info); ok {
		fr.Reconciled = &matched
		p.metrics.RecordReconciliation(string(issuer), matched)
		if !matched {
			log.Warn().
				Str("extracted", spendOf(info.Transactions).StringFixed(2)).
				Str("statement", info.Summary.Purchases.StringFixed(2)).
				Msg("extracted purchases do not match statement summary")
		}
	}

	for reason, n := range info.DropReasons {
		log.Debug().Str("reason", reason).Int("lines", n).Msg("lines dropped")
	}

	status := metrics.StatusOK
	if fr.Count == 0 {
		status = metrics.StatusEmpty
		log.Warn().Int("lines", info.LinesTotal).Msg("no transactions found")
	} else {
		log.Info().
			Int("transactions", fr.Count).
			Int("skipped", fr.Skipped).
			Int("dropped", fr.Dropped).
			Int("billing_year", info.BillingYear).
			Msg("statement parsed")
	}
	p.metrics.RecordFile(string(issuer), status, time.Since(start))
	return fr
}

func (p *Pipeline) fail(log zerolog.Logger, fr FileResult, start time.Time, err error) FileResult {
	fr.Err = err.Error()
	log.Error().Err(err).Msg("statement failed")
	p.metrics.RecordFile(string(fr.Issuer), metrics.StatusError, time.Since(start))
	return fr
}

func (p *Pipeline) recordLines(issuer string, info *models.StatementInfo) {
	p.metrics.RecordLines(issuer, models.LineParsed, len(info.Transactions))
	p.metrics.RecordLines(issuer, models.LineSkipped, info.Skipped)
	p.metrics.RecordLines(issuer, models.LinePayment, info.Payments)
	p.metrics.RecordLines(issuer, models.LineContinuation, info.Continuations)
	p.metrics.RecordLines(issuer, models.LineDropped, info.Dropped)
}

func (p *Pipeline) assemble(files []FileResult) *Result {
	res := &Result{
		Files:        files,
		Transactions: []models.Transaction{},
		Budget:       p.cfg.Budget,
	}
	for _, f := range files {
		if f.Failed() {
			res.Errors++
			continue
		}
		if f.Info != nil {
			res.Transactions = append(res.Transactions, f.Info.Transactions...)
		}
	}
	res.TotalSpend, res.TotalCredits = Totals(res.Transactions)
	res.Remaining = res.Budget.Sub(res.TotalSpend)
	return res
}

// Totals splits amounts into spend (sum of positive amounts) and credits
// (sum of negative amounts, returned negative).
func Totals(txns []models.Transaction) (spend, credits decimal.Decimal) {
	for _, t := range txns {
		if t.Amount.IsPositive() {
			spend = spend.Add(t.Amount)
		} else {
			credits = credits.Add(t.Amount)
		}
	}
	return spend, credits
}
