package parser

import (
	"regexp"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// profile describes one issuer's statement layout as data.
type profile struct {
	issuer models.IssuerType
	name   string
	// needles identify the issuer in statement text (case-insensitive).
	needles []string
	// dateOrder lists the leading-date formats tried, in order.
	dateOrder []string
	// purchases and payments match the summary box totals; group 1 is the
	// amount. All payment patterns that match are summed.
	purchases []*regexp.Regexp
	payments  []*regexp.Regexp
}

var (
	genericPurchases = []*regexp.Regexp{
		regexp.MustCompile(`(?i)purchases\s*\+?\s*\$([\d,]+\.\d{2})`),
	}
	genericPayments = []*regexp.Regexp{
		regexp.MustCompile(`(?i)payments?,?\s*(?:and\s+(?:other\s+)?)?credits\s*-?\s*\$([\d,]+\.\d{2})`),
	}
)

// profiles are checked in this order during auto-detection.
var profiles = []profile{
	{
		issuer:    models.IssuerAmex,
		name:      "American Express",
		needles:   []string{"american express", "americanexpress.com"},
		dateOrder: []string{FormatSlashShortYear, FormatSlashLongYear, FormatSlashNoYear},
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)new charges\s*\+?\s*\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payments/credits\s*-\s*\$([\d,]+\.\d{2})`),
		},
	},
	{
		issuer:    models.IssuerCapitalOne,
		name:      "Capital One",
		needles:   []string{"capital one", "capitalone.com"},
		dateOrder: []string{FormatMonthDay, FormatSlashNoYear},
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)transactions\s*\+\s*\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payments\s+-\s*\$([\d,]+\.\d{2})`),
			regexp.MustCompile(`(?i)other credits\s+-?\s*\$([\d,]+\.\d{2})`),
		},
	},
	{
		issuer:    models.IssuerChase,
		name:      "Chase",
		needles:   []string{"chase.com", "jpmorgan chase", "chase card services"},
		dateOrder: defaultDateOrder,
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)purchases\s*\+?\s*\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payment,?\s*credits\s*-\s*\$([\d,]+\.\d{2})`),
		},
	},
	{
		issuer:    models.IssuerCiti,
		name:      "Citi",
		needles:   []string{"citibank", "citicards", "citi.com"},
		dateOrder: defaultDateOrder,
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)purchases\s*\+\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payments\s*-\$([\d,]+\.\d{2})`),
			regexp.MustCompile(`(?i)(?:^|\s)credits\s*-\$([\d,]+\.\d{2})`),
		},
	},
	{
		issuer:    models.IssuerDiscover,
		name:      "Discover",
		needles:   []string{"discover.com", "discover card", "discover it"},
		dateOrder: defaultDateOrder,
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)purchases\s*\+?\s*\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payments and credits\s*-\s*\$([\d,]+\.\d{2})`),
		},
	},
	{
		issuer:    models.IssuerBarclays,
		name:      "Barclays",
		needles:   []string{"barclays", "barclaycardus"},
		dateOrder: defaultDateOrder,
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)purchases\s+\+?\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payments[^$\n]*\$([\d,]+\.\d{2})`),
			regexp.MustCompile(`(?i)other credits[^$\n]*\$([\d,]+\.\d{2})`),
		},
	},
	{
		issuer:    models.IssuerBankOfAmerica,
		name:      "Bank of America",
		needles:   []string{"bank of america", "bankofamerica.com"},
		dateOrder: defaultDateOrder,
		purchases: []*regexp.Regexp{
			regexp.MustCompile(`(?i)purchases and adjustments\s*\$([\d,]+\.\d{2})`),
		},
		payments: []*regexp.Regexp{
			regexp.MustCompile(`(?i)payments and other credits\s*-\$([\d,]+\.\d{2})`),
		},
	},
}

var genericProfile = profile{
	issuer:    models.IssuerGeneric,
	name:      "Generic",
	dateOrder: defaultDateOrder,
	purchases: genericPurchases,
	payments:  genericPayments,
}

func lookupProfile(issuer models.IssuerType) (profile, bool) {
	if issuer == models.IssuerGeneric || issuer == "" {
		return genericProfile, true
	}
	for _, p := range profiles {
		if p.issuer == issuer {
			return p, true
		}
	}
	return profile{}, false
}
