package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/last-emo-boy/market-smoke/pkg/config"
	"github.com/last-emo-boy/market-smoke/pkg/database"
)

const recentRuns = 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDB(cfg.History.Path)
	if err != nil {
		log.Fatalf("Failed to open history database: %v", err)
	}
	defer db.Close()

	if err := printHistory(db, os.Stdout, recentRuns); err != nil {
		log.Fatalf("Failed to read history: %v", err)
	}
}

// printHistory writes database statistics and the latest runs with their steps
func printHistory(db *database.DB, out io.Writer, limit int) error {
	if err := db.HealthCheck(); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(out, "History database: %s\n", db.Path())

	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %s: %v\n", key, stats[key])
	}

	runs, err := db.RunRepository().ListRecent(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "\nNo smoke runs recorded")
		return nil
	}

	for _, run := range runs {
		status := "completed"
		switch {
		case run.Aborted:
			status = "aborted"
		case run.FinishedAt == nil:
			status = "unfinished"
		}
		fmt.Fprintf(out, "\n%s  %s  %s  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"), run.ID, run.BaseURL, status)
		if run.TokenSource != "" {
			fmt.Fprintf(out, "  token: %s", run.TokenSource)
			if run.ProductID != "" {
				fmt.Fprintf(out, "  product: %s", run.ProductID)
			}
			fmt.Fprintln(out)
		}

		steps, err := db.StepRepository().ListByRun(run.ID)
		if err != nil {
			return err
		}
		for _, step := range steps {
			result := fmt.Sprintf("%d", step.StatusCode)
			if step.Error != "" {
				result = "error: " + step.Error
			}
			fmt.Fprintf(out, "  %2d. %-20s %-6s %-22s %s (%dms)\n",
				step.Seq, step.Name, step.Method, step.Path, strings.TrimSpace(result), step.DurationMS)
		}
	}
	return nil
}
