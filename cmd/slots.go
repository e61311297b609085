package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"cowin-notifier/model"
)

var (
	slotsPincode    string
	slotsDistrictID int
	slotsAge        int
)

func init() {
	slotsCmd.Flags().StringVar(&slotsPincode, "pincode", "", "pincode to query")
	slotsCmd.Flags().IntVar(&slotsDistrictID, "district-id", 0, "district id to query")
	slotsCmd.Flags().IntVar(&slotsAge, "age", 0, "only show slots this age can book")
	rootCmd.AddCommand(slotsCmd)
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Print the slots of a pincode or district for the next appointment date",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (slotsPincode == "") == (slotsDistrictID == 0) {
			return errors.New("exactly one of --pincode and --district-id is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newCowinClient(cfg)
		date := model.TargetDate(time.Now(), cfg.Polling.DaysAhead)

		var slots []model.AppointmentSlot
		if slotsPincode != "" {
			slots, err = client.CalendarByPin(context.Background(), slotsPincode, date)
		} else {
			slots, err = client.CalendarByDistrict(context.Background(), slotsDistrictID, date)
		}
		if err != nil {
			return err
		}
		for _, s := range slots {
			if slotsAge > 0 && !s.EligibleFor(model.User{Age: slotsAge}) {
				continue
			}
			cmd.Printf("%s\t%d\t%s\t%s\t%s\t%s\t%d+\t%d\n", s.Date, s.CenterID, s.CenterName, s.Pincode, s.Vaccine, s.FeeType, s.MinAgeLimit, s.AvailableCapacity)
		}
		return nil
	},
}
