package models

// WorkItem is one item identifier the engine extracts data for.
type WorkItem struct {
	Code     string `json:"code"`
	Category string `json:"category,omitempty"`
	// URL is an optional detail page discovered on a listing page.
	URL string `json:"url,omitempty"`
}

func (w WorkItem) String() string {
	if w.Category == "" {
		return w.Code
	}
	return w.Category + "/" + w.Code
}

// Result is the structured data extracted for a single work item.
// A nil *Result means the portal has no data for the item.
type Result struct {
	ItemCode     string            `json:"item_code"`
	Name         string            `json:"name,omitempty"`
	Price        *float64          `json:"price,omitempty"`
	PriceBasis   string            `json:"price_basis,omitempty"`
	Coverage     *float64          `json:"coverage,omitempty"`
	CoverageUnit string            `json:"coverage_unit,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

func (r *Result) HasPrice() bool {
	return r != nil && r.Price != nil && *r.Price > 0
}
