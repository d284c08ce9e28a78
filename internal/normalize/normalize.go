// Package normalize converts raw scraped table rows into typed usage
// records grouped by unit name. It is a pure transformation with no I/O.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gridtools/usagescraper/pkg/models"
)

// UnitSeparator joins account and address into a unit name. Account and
// address text must not contain it; the portal's data never does.
const UnitSeparator = ";"

// dateLayout matches the portal table's m/d/yyyy date column.
const dateLayout = "1/2/2006"

// rowFields is the exact token count of a usage table row:
// date, usage, day count, two unused columns, charge, average temperature.
const rowFields = 7

// UnitName derives the persistent key grouping records to a metered unit.
func UnitName(account, address string) string {
	return account + UnitSeparator + address
}

// Records flattens the scraped dataset into usage records grouped by unit
// name. Addresses with no scraped rows produce no entry at all.
//
// The pass is fail-fast: the first malformed row aborts with an error and no
// partial result, so a half-normalized dataset can never reach the store.
func Records(data models.RawDataset) (map[string][]models.UsageRecord, error) {
	out := make(map[string][]models.UsageRecord)
	for account, addresses := range data {
		for address, rows := range addresses {
			if len(rows) == 0 {
				continue
			}
			unit := UnitName(account, address)
			records := make([]models.UsageRecord, 0, len(rows))
			for _, raw := range rows {
				rec, err := parseRow(unit, raw)
				if err != nil {
					return nil, err
				}
				records = append(records, rec)
			}
			out[unit] = records
		}
	}
	return out, nil
}

// parseRow tokenizes one raw table row and derives the typed record. Usage
// and average temperature pass through as opaque numeric strings; the store
// coerces them if it needs to.
func parseRow(unit, raw string) (models.UsageRecord, error) {
	fields := strings.Fields(raw)
	if len(fields) != rowFields {
		return models.UsageRecord{}, fmt.Errorf(
			"unit %s: row %q: expected %d fields, got %d", unit, raw, rowFields, len(fields))
	}

	start, err := time.Parse(dateLayout, fields[0])
	if err != nil {
		return models.UsageRecord{}, fmt.Errorf("unit %s: row %q: parsing date: %w", unit, raw, err)
	}

	days, err := strconv.Atoi(fields[2])
	if err != nil {
		return models.UsageRecord{}, fmt.Errorf("unit %s: row %q: parsing day count: %w", unit, raw, err)
	}

	charge, err := stripCurrencySymbol(fields[5])
	if err != nil {
		return models.UsageRecord{}, fmt.Errorf("unit %s: row %q: %w", unit, raw, err)
	}

	return models.UsageRecord{
		UnitName:  unit,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, days),
		Usage:     fields[1],
		Charge:    charge,
		AvgTemp:   fields[6],
	}, nil
}

// stripCurrencySymbol drops the leading currency rune from a charge token.
func stripCurrencySymbol(charge string) (string, error) {
	if charge == "" {
		return "", fmt.Errorf("empty charge field")
	}
	_, size := utf8.DecodeRuneInString(charge)
	return charge[size:], nil
}
