package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single pass over the waiting list and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := newEngine(ctx, cfg, log.Logger)
		if err != nil {
			return err
		}
		result, err := engine.Pass(ctx)
		if err != nil {
			return err
		}
		for _, m := range result.Notified {
			cmd.Printf("%s\t%s\t%s\t%s\t%s\n", m.User.Name, m.Tier, m.Slot.CenterName, m.Slot.Pincode, m.Slot.Date)
		}
		cmd.Printf("notified %d of %d users, %d failed\n", len(result.Notified), result.Users, result.Failed)
		return nil
	},
}
