// wisp-export appends a household's balance statement for one period to
// a Google Sheet and exits. Run it from cron at the end of each month.
package main

import (
	"context"
	"os"
	"time"

	"wisp/internal/cli"
	"wisp/internal/config"
	"wisp/internal/core"
	"wisp/internal/export"
	gsheet "wisp/internal/export/google"
	"wisp/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := config.Load()
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Period defaults to the current month.
	token := core.TokenForDate(time.Now())
	if len(os.Args) > 1 {
		var err error
		token, err = core.ParsePeriodToken(os.Args[1])
		if err != nil {
			logger.Error("Invalid period argument, expected YYYY-MM", "argument", os.Args[1])
			os.Exit(1)
		}
	}

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	balances := services.NewBalanceService(store)
	summaries, err := balances.HouseholdSummary(ctx, cfg.ExportHouseholdID)
	if err != nil {
		logger.Error("Failed to compute household summary",
			"error", err, "household_id", cfg.ExportHouseholdID)
		os.Exit(1)
	}
	if len(summaries) == 0 {
		logger.Error("Household has no members to report", "household_id", cfg.ExportHouseholdID)
		os.Exit(1)
	}

	rows := make([]export.StatementRow, len(summaries))
	for i, s := range summaries {
		rows[i] = export.StatementRow{
			Period:     string(token),
			MemberName: s.Member.Name,
			TotalPaid:  s.Totals.TotalPaid,
			TotalOwed:  s.Totals.TotalOwed,
			Balance:    s.Totals.Balance,
		}
	}

	client, err := gsheet.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	ref, err := client.AppendStatement(ctx, rows)
	if err != nil {
		logger.Error("Failed to append statement", "error", err)
		os.Exit(1)
	}

	logger.Info("Statement exported",
		"household_id", cfg.ExportHouseholdID,
		"period", string(token),
		"members", len(rows),
		"range", ref)
}
