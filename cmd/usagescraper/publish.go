package main

import (
	"fmt"

	"github.com/gridtools/usagescraper/internal/publisher"
	"github.com/gridtools/usagescraper/pkg/models"
	"github.com/spf13/cobra"
)

var (
	publishUnit string
	publishAll  bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored usage records to MQTT",
	Long:  `Reads stored usage records from the database and publishes them to the configured MQTT broker, one message per record.`,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishUnit, "unit", "", "Publish a single unit (account;address)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all records (ignore published flag)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pub, err := publisher.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	units := []string{}
	if publishUnit != "" {
		units = append(units, publishUnit)
	} else {
		units, err = db.ListUnits()
		if err != nil {
			return fmt.Errorf("listing units: %w", err)
		}
	}

	totalPublished := 0
	for _, unit := range units {
		var records []models.UsageRecord
		if publishAll {
			records, err = db.ListRecords(unit)
		} else {
			records, err = db.ListUnpublishedRecords(unit)
		}
		if err != nil {
			return fmt.Errorf("listing records for %s: %w", unit, err)
		}

		if len(records) == 0 {
			logger.Info("nothing to publish", "unit", unit)
			continue
		}

		logger.Info("publishing", "unit", unit, "records", len(records))
		for _, rec := range records {
			if err := pub.Publish(rec); err != nil {
				logger.Error("publish failed", "unit", unit,
					"start_date", rec.StartDate.Format("2006-01-02"), "err", err)
				continue
			}
			if err := db.MarkPublished(rec.ID); err != nil {
				logger.Warn("could not mark record published", "id", rec.ID, "err", err)
			}
			totalPublished++
		}
	}

	logger.Info("done", "published", totalPublished)
	return nil
}
