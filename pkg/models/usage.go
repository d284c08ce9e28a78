package models

import "time"

// UsageRecord represents one billing-period row scraped from the portal's
// usage table, keyed by the unit it belongs to.
type UsageRecord struct {
	ID        int       `json:"id"`
	UnitName  string    `json:"unit_name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"` // derived: start date + billed day count
	Usage     string    `json:"usage"`    // opaque numeric string, coerced by consumers
	Charge    string    `json:"charge"`   // currency symbol stripped
	AvgTemp   string    `json:"avg_temp"`
	Published bool      `json:"published"`
}

// RawDataset is the nested scrape output: account -> address label -> raw
// table rows. Accounts with a single implicit address still get one address
// entry so consumers never special-case the shape.
type RawDataset map[string]map[string][]string
