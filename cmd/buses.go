package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/transitio/fleetcoord/config"
	"github.com/transitio/fleetcoord/core/roster"
	infraroster "github.com/transitio/fleetcoord/infra/roster"
)

var busesCmd = &cobra.Command{
	Use:   "buses",
	Short: "List the configured fleet",
	RunE:  runBuses,
}

func init() {
	rootCmd.AddCommand(busesCmd)
}

func runBuses(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var fleet roster.Roster
	if cfg.Roster.MySQL.Enabled {
		db, err := infraroster.Open(cfg.Roster.MySQL)
		if err != nil {
			return fmt.Errorf("fleet database: %w", err)
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		fleet, err = infraroster.Load(ctx, db)
		if err != nil {
			return fmt.Errorf("fleet roster: %w", err)
		}
	} else {
		fleet = roster.NewStatic(cfg.Roster.BusInfos())
	}

	for _, bus := range fleet.Buses() {
		fmt.Printf("%s\towner=%s\tdriver=%s\tseats=%d\n", bus.ID, bus.OwnerID, bus.DriverID, len(bus.Seats))
	}
	return nil
}
