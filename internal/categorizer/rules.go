package categorizer

// Fallback pair returned when no rule matches.
const (
	FallbackCategory    = "Other"
	FallbackSubcategory = "Uncategorized"
)

// Rule maps a merchant matcher to a category pair.
type Rule struct {
	Name        string
	Matcher     Matcher
	Category    string
	Subcategory string
}

// DefaultRules returns the built-in merchant table. Order matters: the first
// matching rule wins, so specific merchants sit above the general ones that
// would also match them (uber eats before uber trip, prime video and amazon
// web services before amazon, gloss bar before bar).
func DefaultRules() []Rule {
	return []Rule{
		{"coffee", Contains("starbucks", "espresso", "compass", "sweet leaf", "blue bottle", "dunkin"), "Dining", "Coffee Shops"},
		{"bakery", Contains("doughnut", "donut", "toastique", "tatte bakery", "bakery"), "Dining", "Snacks"},
		{"lunch-dinner", Contains("chicken and whiskey", "burger"), "Dining", "Lunch/Dinner"},
		{"breakfast", Contains("bethesda bagels", "bagel"), "Dining", "Breakfast"},
		{"food-delivery", Contains("uber eats", "doordash", "grubhub"), "Dining", "Delivery"},

		{"interest-fees", Any(Contains("interest"), Words("fee", "fees")), "Anomalies", "Interest / Fees"},

		{"nails", Contains("nail"), "Grooming", "Nails"},
		{"skin", Contains("silver mirror", "facial"), "Grooming", "Facials/Skin"},
		{"hair", Contains("gloss bar"), "Grooming", "Hair"},

		{"restaurants", Any(
			Contains("tst*yellow", "union market", "restaurant", "cafe", "toast", "bistro", "grill"),
			Words("bar"),
		), "Dining", "Restaurants"},

		{"grocery-delivery", Contains("instacart"), "Groceries", "Delivery"},
		{"grocery-store", Any(Contains("trader joe", "wholefds", "whole foods"), Words("giant")), "Groceries", "Store"},

		{"bikes", Any(Contains("capbike"), All(Contains("lyft"), Contains("ride"), Contains("bike"))), "Transportation", "Bikes"},
		{"uber", Contains("uber trip", "uber *trip"), "Transportation", "Uber"},
		{"lyft", Contains("lyft"), "Transportation", "Lyft"},
		{"metro", Contains("smart trip", "smartrip", "metro washington"), "Transportation", "Metro"},

		{"digital-services", Contains("prime video", "netflix", "apple.com", "google one", "spotify"), "Subscriptions", "Digital Services"},
		{"fitness", Any(Contains("classpass", "ouraring", "oura ring"), Words("oura")), "Subscriptions", "Health / Fitness"},
		{"code-design", Any(Contains("canva", "figma", "github", "midjourney"), Words("gamma")), "Subscriptions", "Code / Design"},

		{"cloud", Any(Contains("amazon web services"), Words("aws")), "Business", "Cloud Services"},

		{"threading", Any(Contains("eyebrow", "threading", "contour"), Words("brow", "brows")), "Grooming", "Threading/Waxing"},
		{"salon", Contains("salon", "beauty"), "Grooming", "Salon Services"},

		{"clothes", Contains("ann taylor", "skims", "reformation"), "Shopping", "Clothes"},
		{"retail", Contains("sephora", "wayfair", "amazon"), "Shopping", "Retail"},

		{"dry-cleaning", Contains("dryydc", "dry clean"), "Other", "Dry Cleaning"},
	}
}
