package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gridtools/usagescraper/internal/normalize"
	"github.com/gridtools/usagescraper/internal/portal"
	"github.com/spf13/cobra"
)

var runVisible bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape account history and store it",
	Long: `Logs in to the utility portal, walks every billing account and service
address, scrapes the usage table for each, and writes normalized records to
the local SQLite database in a single transaction.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runVisible, "visible", false, "Show browser window (for debugging)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	runLog := logger.With("run_id", uuid.New().String())

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	driver, err := portal.StartChrome(context.Background(), runVisible)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer driver.Close()

	if len(cfg.Cookies) > 0 {
		if err := driver.SetCookies(cfg.Cookies); err != nil {
			return fmt.Errorf("restoring cookies: %w", err)
		}
	}

	nav := portal.NewNavigator(driver, runLog.With("component", "navigator"))
	if err := nav.Login(portal.Credentials{
		LoginURL: cfg.Portal.LoginURL,
		Username: cfg.Portal.Username,
		Password: cfg.Portal.Password,
	}); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	data, err := nav.ScrapeAll()
	if err != nil {
		return fmt.Errorf("scraping account history: %w", err)
	}
	runLog.Info("finished getting account history", "accounts", len(data))

	runLog.Info("cleaning data")
	records, err := normalize.Records(data)
	if err != nil {
		return fmt.Errorf("normalizing data: %w", err)
	}
	if len(records) == 0 {
		runLog.Info("no usage history found")
		return nil
	}

	runLog.Info("inserting data", "units", len(records))
	if err := db.InsertHistory(records); err != nil {
		return fmt.Errorf("inserting data: %w", err)
	}

	total := 0
	for _, recs := range records {
		total += len(recs)
	}
	runLog.Info("finished", "units", len(records), "records", total)
	return nil
}
