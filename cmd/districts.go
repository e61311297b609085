package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cowin-notifier/directory"
)

func init() {
	rootCmd.AddCommand(districtsCmd)
}

var districtsCmd = &cobra.Command{
	Use:   "districts",
	Short: "Refresh the local district reference file from the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, err := directory.Refresh(context.Background(), cfg.Directory.File, newCowinClient(cfg), log.Logger)
		if err != nil {
			return err
		}
		for _, state := range dir.States() {
			cmd.Printf("%s\t%d districts\n", state, len(dir.DistrictIDs(state)))
		}
		return nil
	},
}
