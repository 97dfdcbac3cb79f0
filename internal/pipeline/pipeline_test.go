package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/card-statement-ledger/internal/categorizer"
	"github.com/insightdelivered/card-statement-ledger/internal/logger"
	"github.com/insightdelivered/card-statement-ledger/internal/metrics"
	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

const marchPage = `Account Summary
Purchases +$66.85
03/14  STARBUCKS STORE #123        $4.75
03/15  WHOLEFDS MKT 10234          $62.10
03/20  AUTOPAY PAYMENT - THANK YOU ($150.00)`

const aprilPage = `04/02  UBER *TRIP HELP.UBER.COM   $18.20
04/03  MYSTERY VENDOR              $7.00
04/05  TARGET RETURN               -$10.00`

type recordingCollector struct {
	mu       sync.Mutex
	files    map[string]int
	lines    map[string]int
	txns     int
	reconcil map[bool]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{files: map[string]int{}, lines: map[string]int{}, reconcil: map[bool]int{}}
}

func (r *recordingCollector) RecordFile(issuer, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[status]++
}

func (r *recordingCollector) RecordLines(issuer, result string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[result] += n
}

func (r *recordingCollector) RecordTransactions(issuer string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns += n
}

func (r *recordingCollector) RecordReconciliation(issuer string, matched bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconcil[matched]++
}

var _ metrics.Collector = (*recordingCollector)(nil)

func docs() []Document {
	return []Document{
		{Name: "march.pdf", Card: "Sapphire", BillingYear: 2024, Pages: []string{marchPage}},
		{Name: "april.pdf", Card: "Venture", Issuer: models.IssuerGeneric, BillingYear: 2024, Pages: []string{aprilPage}},
	}
}

func TestRun_AssemblesLedgerInUploadOrder(t *testing.T) {
	rec := newRecordingCollector()
	p := New(Config{Budget: decimal.NewFromInt(500)}, zerolog.Nop(), rec)

	res, err := p.Run(context.Background(), docs())
	require.NoError(t, err)

	require.Len(t, res.Files, 2)
	assert.Equal(t, "march.pdf", res.Files[0].Source)
	assert.Equal(t, "april.pdf", res.Files[1].Source)
	assert.Equal(t, 2, res.Files[0].Count)
	assert.Equal(t, 1, res.Files[0].Payments)
	assert.Equal(t, 3, res.Files[1].Count)
	assert.Zero(t, res.Errors)

	require.Len(t, res.Transactions, 5)
	descs := make([]string, len(res.Transactions))
	for i, txn := range res.Transactions {
		descs[i] = txn.Description
	}
	assert.Equal(t, []string{
		"STARBUCKS STORE #123",
		"WHOLEFDS MKT 10234",
		"UBER *TRIP HELP.UBER.COM",
		"MYSTERY VENDOR",
		"TARGET RETURN",
	}, descs)

	assert.Equal(t, "Sapphire", res.Transactions[0].Card)
	assert.Equal(t, "Venture", res.Transactions[2].Card)

	assert.Equal(t, "Dining", res.Transactions[0].Category)
	assert.Equal(t, "Coffee Shops", res.Transactions[0].Subcategory)
	assert.Equal(t, "Transportation", res.Transactions[2].Category)
	assert.Equal(t, categorizer.FallbackCategory, res.Transactions[3].Category)

	assert.True(t, res.TotalSpend.Equal(decimal.RequireFromString("92.05")), "spend %s", res.TotalSpend)
	assert.True(t, res.TotalCredits.Equal(decimal.RequireFromString("-10")), "credits %s", res.TotalCredits)
	assert.True(t, res.Remaining.Equal(decimal.RequireFromString("407.95")), "remaining %s", res.Remaining)

	assert.Equal(t, 2, rec.files[metrics.StatusOK])
	assert.Equal(t, 5, rec.txns)
	assert.Equal(t, 5, rec.lines[models.LineParsed])
	assert.Equal(t, 1, rec.lines[models.LinePayment])
}

func TestRun_Reconciliation(t *testing.T) {
	rec := newRecordingCollector()
	p := New(Config{}, zerolog.Nop(), rec)

	res, err := p.Run(context.Background(), docs())
	require.NoError(t, err)

	require.NotNil(t, res.Files[0].Reconciled)
	assert.True(t, *res.Files[0].Reconciled)
	assert.Nil(t, res.Files[1].Reconciled, "no printed summary")
	assert.Equal(t, 1, rec.reconcil[true])

	mismatch := Document{Name: "bad.pdf", BillingYear: 2024, Pages: []string{"Purchases +$100.00\n03/14  STARBUCKS   $4.75"}}
	res, err = p.Run(context.Background(), []Document{mismatch})
	require.NoError(t, err)
	require.NotNil(t, res.Files[0].Reconciled)
	assert.False(t, *res.Files[0].Reconciled)
}

func TestRun_IncludePayments(t *testing.T) {
	p := New(Config{IncludePayments: true}, zerolog.Nop(), nil)

	res, err := p.Run(context.Background(), docs()[:1])
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)

	pay := res.Transactions[2]
	assert.Equal(t, models.TypePayment, pay.Type)
	assert.True(t, pay.Amount.IsNegative())
	assert.True(t, res.TotalCredits.Equal(decimal.RequireFromString("-150")))
}

func TestRun_FailingFileIsIsolated(t *testing.T) {
	buf := &bytes.Buffer{}
	rec := newRecordingCollector()
	p := New(Config{}, zerolog.New(buf), rec)

	d := docs()
	in := []Document{d[0], {Name: "unknown.pdf", Issuer: "monzo", Pages: []string{aprilPage}}, d[1]}

	res, err := p.Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Files, 3)
	assert.True(t, res.Files[1].Failed())
	assert.Contains(t, res.Files[1].Err, "unknown card issuer")
	assert.False(t, res.Files[0].Failed())
	assert.False(t, res.Files[2].Failed())
	assert.Equal(t, 1, res.Errors)
	assert.Len(t, res.Transactions, 5)
	assert.Equal(t, 1, rec.files[metrics.StatusError])
	assert.Contains(t, buf.String(), "statement failed")
}

func TestRun_EmptyDocumentIsNotAnError(t *testing.T) {
	rec := newRecordingCollector()
	p := New(Config{}, zerolog.Nop(), rec)

	res, err := p.Run(context.Background(), []Document{{Name: "scan.pdf", Pages: nil}})
	require.NoError(t, err)

	require.Len(t, res.Files, 1)
	assert.False(t, res.Files[0].Failed())
	assert.Zero(t, res.Files[0].Count)
	assert.Empty(t, res.Transactions)
	assert.NotNil(t, res.Transactions)
	assert.Equal(t, 1, rec.files[metrics.StatusEmpty])
}

func TestRun_BillingYearHint(t *testing.T) {
	doc := Document{Name: "nodate.pdf", Pages: []string{"03/14  STARBUCKS   $4.75"}}

	res, err := New(Config{}, zerolog.Nop(), nil).Run(context.Background(), []Document{doc})
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, 1, res.Files[0].Dropped)

	res, err = New(Config{BillingYearHint: 2023}, zerolog.Nop(), nil).Run(context.Background(), []Document{doc})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, 2023, res.Transactions[0].Date.Year())
}

func TestRun_HeaderYearBeatsConfigHint(t *testing.T) {
	doc := Document{Name: "dec.pdf", Pages: []string{`Opening/Closing Date 12/05/24 - 01/04/25
12/20  MARRIOTT HOTEL   $310.00
01/02  BLUE BOTTLE CAFE   $6.50`}}

	res, err := New(Config{BillingYearHint: 2024}, zerolog.Nop(), nil).Run(context.Background(), []Document{doc})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, time.Date(2024, time.December, 20, 0, 0, 0, 0, time.UTC), res.Transactions[0].Date)
	assert.Equal(t, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC), res.Transactions[1].Date)

	doc.BillingYear = 2026
	res, err = New(Config{BillingYearHint: 2024}, zerolog.Nop(), nil).Run(context.Background(), []Document{doc})
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, 2025, res.Transactions[0].Date.Year())
	assert.Equal(t, 2026, res.Transactions[1].Date.Year())
}

func TestRun_DetectsIssuerAndDefaultsCard(t *testing.T) {
	doc := Document{Name: "Venture_0324.pdf", BillingYear: 2024, Pages: []string{"Mar 14 STARBUCKS STORE $4.75"}}

	res, err := New(Config{}, zerolog.Nop(), nil).Run(context.Background(), []Document{doc})
	require.NoError(t, err)

	assert.Equal(t, models.IssuerCapitalOne, res.Files[0].Issuer)
	assert.Equal(t, "Capital One", res.Files[0].Card)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "Capital One", res.Transactions[0].Card)
}

func TestRun_ExtraRules(t *testing.T) {
	extra := []categorizer.Rule{{Name: "mystery", Matcher: categorizer.Contains("mystery vendor"), Category: "Business", Subcategory: "Supplies"}}
	p := New(Config{ExtraRules: extra, ExtraPosition: categorizer.Append}, zerolog.Nop(), nil)

	res, err := p.Run(context.Background(), docs()[1:])
	require.NoError(t, err)
	assert.Equal(t, "Business", res.Transactions[1].Category)
	assert.Len(t, p.Categorizer().Rules(), len(categorizer.DefaultRules())+1)
}

func TestRun_Idempotent(t *testing.T) {
	p := New(Config{Workers: 2}, zerolog.Nop(), nil)

	first, err := p.Run(context.Background(), docs())
	require.NoError(t, err)
	second, err := p.Run(context.Background(), docs())
	require.NoError(t, err)

	require.Equal(t, len(first.Transactions), len(second.Transactions))
	for i := range first.Transactions {
		assert.Equal(t, first.Transactions[i].ID, second.Transactions[i].ID)
		assert.Equal(t, first.Transactions[i].Description, second.Transactions[i].Description)
		assert.True(t, first.Transactions[i].Amount.Equal(second.Transactions[i].Amount))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(Config{}, zerolog.Nop(), nil).Run(ctx, docs())
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, res.Files, 2)
	assert.Equal(t, 2, res.Errors)
	assert.Empty(t, res.Transactions)
}

func TestRun_ManyFilesKeepOrder(t *testing.T) {
	var in []Document
	for i := 0; i < 20; i++ {
		in = append(in, Document{Name: string(rune('a'+i)) + ".pdf", BillingYear: 2024, Pages: []string{aprilPage}})
	}

	res, err := New(Config{Workers: 3}, zerolog.Nop(), nil).Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Transactions, 60)
	for i, f := range res.Files {
		assert.Equal(t, in[i].Name, f.Source)
		assert.Equal(t, in[i].Name, res.Transactions[i*3].SourceFile)
	}
}

func TestTotals(t *testing.T) {
	txns := []models.Transaction{
		{Amount: decimal.RequireFromString("10.50")},
		{Amount: decimal.RequireFromString("-4.25")},
		{Amount: decimal.RequireFromString("2.00")},
	}
	spend, credits := Totals(txns)
	assert.True(t, spend.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, credits.Equal(decimal.RequireFromString("-4.25")))
}

func TestRun_UnreadableDocument(t *testing.T) {
	in := []Document{
		{Name: "broken.pdf", Err: errors.New("read PDF: not a PDF file")},
		docs()[1],
	}

	res, err := New(Config{}, zerolog.Nop(), nil).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "read PDF: not a PDF file", res.Files[0].Err)
	assert.Equal(t, 1, res.Errors)
	assert.Len(t, res.Transactions, 3)
}

func TestIncludingPayments(t *testing.T) {
	base := New(Config{}, zerolog.Nop(), nil)
	withPayments := base.IncludingPayments(true)

	assert.False(t, base.Config().IncludePayments)
	assert.True(t, withPayments.Config().IncludePayments)
	assert.Same(t, base.Categorizer(), withPayments.Categorizer())
}

func TestRun_UsesContextLogger(t *testing.T) {
	own, scoped := &bytes.Buffer{}, &bytes.Buffer{}
	p := New(Config{}, zerolog.New(own), nil)

	ctx := logger.WithContext(context.Background(), zerolog.New(scoped).With().Str("request_id", "abc").Logger())
	_, err := p.Run(ctx, docs())
	require.NoError(t, err)

	assert.Empty(t, own.String())
	assert.Contains(t, scoped.String(), `"request_id":"abc"`)
	assert.Contains(t, scoped.String(), "ledger assembled")
}
