package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cowin-notifier/monitor"
	"cowin-notifier/poller"
)

func init() {
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Poll the appointment API and notify waiting users until stopped",
	Long:  `Runs a pass over the waiting list right away and then on every polling interval, until interrupted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Debug().Msg("Loading configuration")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := log.Logger
		engine, err := newEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		monitor.Listen(ctx, cfg.Monitoring, logger)

		log.Info().Str("section", "init").Msg("Listening for new appointment slots")
		return poller.New(engine, cfg.Polling.Interval, logger).Run(ctx)
	},
}
