package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/card-statement-ledger/internal/categorizer"
	"github.com/insightdelivered/card-statement-ledger/internal/extractor"
	"github.com/insightdelivered/card-statement-ledger/internal/models"
	"github.com/insightdelivered/card-statement-ledger/internal/parser"
	"github.com/insightdelivered/card-statement-ledger/internal/pipeline"
)

// ExtractResponse is the JSON response from the /api/extract endpoint.
type ExtractResponse struct {
	Success      bool                  `json:"success"`
	Error        string                `json:"error,omitempty"`
	Budget       decimal.Decimal       `json:"budget"`
	Files        []pipeline.FileResult `json:"files"`
	Transactions []models.Transaction  `json:"transactions"`
	TotalSpend   decimal.Decimal       `json:"totalSpend"`
	TotalCredits decimal.Decimal       `json:"totalCredits"`
	Remaining    decimal.Decimal       `json:"remaining"`
	Count        int                   `json:"count"`
	Version      string                `json:"version,omitempty"`
}

// CategorizeRequest is the body of /api/categorize.
type CategorizeRequest struct {
	Descriptions []string `json:"descriptions"`
}

// Categorization is one categorized description.
type Categorization struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Rule        string `json:"rule,omitempty"`
}

// RuleView describes one rule of the effective table.
type RuleView struct {
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Matcher     string `json:"matcher"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.version,
		"engine":  "fiber",
	})
}

// HandleExtract accepts one or more statement PDFs (form field "files",
// or "file" for a single upload) or client-extracted text
// ("extractedText", pages separated by extractor.PageBreak) and returns the
// categorized ledger.
func (s *Server) HandleExtract(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
	}

	opts, err := readExtractOptions(form)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var docs []pipeline.Document
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)
	for _, fh := range headers {
		docs = append(docs, s.readUpload(fh, opts))
	}

	if text := formValue(form, "extractedText"); text != "" {
		name := formValue(form, "filename")
		if name == "" {
			name = "extracted-text"
		}
		doc := opts.document(name)
		doc.Pages = extractor.SplitPages(text)
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no statement uploaded; use form field 'files' or 'extractedText'")
	}

	p := s.pipeline
	if opts.includePayments != nil {
		p = p.IncludingPayments(*opts.includePayments)
	}

	res, err := p.Run(c.UserContext(), docs)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(ExtractResponse{
		Success:      true,
		Budget:       res.Budget,
		Files:        res.Files,
		Transactions: res.Transactions,
		TotalSpend:   res.TotalSpend,
		TotalCredits: res.TotalCredits,
		Remaining:    res.Remaining,
		Count:        len(res.Transactions),
		Version:      s.version,
	})
}

// HandleCategorize categorizes free-form descriptions.
func (s *Server) HandleCategorize(c *fiber.Ctx) error {
	var req CategorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
	}
	if len(req.Descriptions) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "descriptions must not be empty")
	}

	cat := s.pipeline.Categorizer()
	out := make([]Categorization, len(req.Descriptions))
	for i, desc := range req.Descriptions {
		out[i] = Categorization{Description: desc}
		if r, ok := cat.Match(desc); ok {
			out[i].Category, out[i].Subcategory, out[i].Rule = r.Category, r.Subcategory, r.Name
		} else {
			out[i].Category, out[i].Subcategory = categorizer.FallbackCategory, categorizer.FallbackSubcategory
		}
	}
	return c.JSON(fiber.Map{"results": out})
}

// HandleRules lists the effective rule table in evaluation order.
func (s *Server) HandleRules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rules": RuleViews(s.pipeline.Categorizer().Rules())})
}

// RuleViews renders rules for display.
func RuleViews(rules []categorizer.Rule) []RuleView {
	out := make([]RuleView, len(rules))
	for i, r := range rules {
		out[i] = RuleView{Position: i + 1, Name: r.Name, Category: r.Category, Subcategory: r.Subcategory}
		if r.Matcher != nil {
			out[i].Matcher = r.Matcher.String()
		}
	}
	return out
}

type extractOptions struct {
	card            string
	issuer          models.IssuerType
	billingYear     int
	includePayments *bool
}

func (o extractOptions) document(name string) pipeline.Document {
	return pipeline.Document{Name: name, Card: o.card, Issuer: o.issuer, BillingYear: o.billingYear}
}

func readExtractOptions(form *multipart.Form) (extractOptions, error) {
	opts := extractOptions{card: formValue(form, "card")}

	if v := formValue(form, "issuer"); v != "" && !strings.EqualFold(v, "auto") {
		issuer, err := parser.ParseIssuer(v)
		if err != nil {
			return opts, err
		}
		opts.issuer = issuer
	}
	if v := formValue(form, "billingYear"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil || year < 1900 || year > 9999 {
			return opts, fmt.Errorf("invalid billingYear %q", v)
		}
		opts.billingYear = year
	}
	if v := formValue(form, "includePayments"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid includePayments %q", v)
		}
		opts.includePayments = &include
	}
	return opts, nil
}

// readUpload extracts one uploaded PDF. Failures are attached to the
// document so the file shows up as failed in upload order.
func (s *Server) readUpload(fh *multipart.FileHeader, opts extractOptions) pipeline.Document {
	doc := opts.document(fh.Filename)

	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		doc.Err = fmt.Errorf("only PDF files are supported")
		return doc
	}

	f, err := fh.Open()
	if err != nil {
		doc.Err = fmt.Errorf("open upload: %w", err)
		return doc
	}
	defer f.Close()

	pages, err := extractor.ExtractPages(f, fh.Size)
	switch {
	case errors.Is(err, extractor.ErrNoText):
		s.log.Warn().Str("source", fh.Filename).Msg("no readable text in PDF")
	case err != nil:
		doc.Err = err
	default:
		doc.Pages = pages
	}
	return doc
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}
