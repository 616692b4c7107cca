package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/transitio/fleetcoord/config"
	"github.com/transitio/fleetcoord/infra/backlog"
	"github.com/transitio/fleetcoord/pkg/export"
)

var (
	alertsBusID  string
	alertsSince  time.Duration
	alertsFormat string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert backlog commands",
}

var alertsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a bus's alert history from the shared backlog",
	RunE:  runAlertsExport,
}

func init() {
	alertsExportCmd.Flags().StringVar(&alertsBusID, "bus", "", "bus id (required)")
	alertsExportCmd.Flags().DurationVar(&alertsSince, "since", time.Hour, "how far back to export")
	alertsExportCmd.Flags().StringVar(&alertsFormat, "format", "csv", "output format: csv or json")
	_ = alertsExportCmd.MarkFlagRequired("bus")
	alertsCmd.AddCommand(alertsExportCmd)
	rootCmd.AddCommand(alertsCmd)
}

func runAlertsExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Backlog.Enabled {
		return fmt.Errorf("alert export requires the redis backlog")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	store, err := backlog.NewRedisBacklog(ctx, cfg.Backlog)
	if err != nil {
		return fmt.Errorf("alert backlog: %w", err)
	}
	defer store.Close()

	alerts, err := store.Since(ctx, alertsBusID, time.Now().Add(-alertsSince))
	if err != nil {
		return fmt.Errorf("fetch alerts: %w", err)
	}

	switch alertsFormat {
	case "csv":
		return export.WriteCSV(os.Stdout, alerts)
	case "json":
		return export.WriteJSON(os.Stdout, alerts)
	default:
		return fmt.Errorf("unknown format %q", alertsFormat)
	}
}
