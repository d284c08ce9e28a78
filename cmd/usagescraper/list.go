package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listUnit string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage records",
	Long:  `Displays stored usage records from the database, grouped by unit.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listUnit, "unit", "", "Filter by unit name (account;address)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	units := []string{}
	if listUnit != "" {
		units = append(units, listUnit)
	} else {
		units, err = db.ListUnits()
		if err != nil {
			return fmt.Errorf("listing units: %w", err)
		}
	}

	if len(units) == 0 {
		fmt.Println("No units found")
		return nil
	}

	for _, unit := range units {
		records, err := db.ListRecords(unit)
		if err != nil {
			return fmt.Errorf("listing records for %s: %w", unit, err)
		}

		if len(records) == 0 {
			fmt.Printf("No records found for %s\n", unit)
			continue
		}

		fmt.Printf("\n%s:\n", unit)
		fmt.Println("------------------------------------------------------------")
		fmt.Printf("%-12s  %-12s  %10s  %10s  %8s\n", "Start", "End", "Usage", "Charge", "AvgTemp")
		fmt.Println("------------------------------------------------------------")

		var totalCharge float64
		for _, rec := range records {
			fmt.Printf("%-12s  %-12s  %10s  %10s  %8s\n",
				rec.StartDate.Format("2006-01-02"), rec.EndDate.Format("2006-01-02"),
				rec.Usage, rec.Charge, rec.AvgTemp)
			if charge, err := strconv.ParseFloat(rec.Charge, 64); err == nil {
				totalCharge += charge
			}
		}

		fmt.Println("------------------------------------------------------------")
		fmt.Printf("Total: %s charged over %s records\n",
			humanize.CommafWithDigits(totalCharge, 2),
			humanize.Comma(int64(len(records))))
	}

	return nil
}
