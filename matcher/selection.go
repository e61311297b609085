package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"cowin-notifier/distance"
	"cowin-notifier/model"
)

// ErrNoSlots is returned when there is nothing to choose from.
var ErrNoSlots = errors.New("matcher: no slots to choose from")

// Eligible keeps the slots the user may book, in pool order.
func Eligible(u model.User, pool []model.AppointmentSlot) []model.AppointmentSlot {
	var eligible []model.AppointmentSlot
	for _, s := range pool {
		if s.EligibleFor(u) {
			eligible = append(eligible, s)
		}
	}
	return eligible
}

// SelectTier returns the first non empty preference tier of the eligible slots:
// the preferred center, then the user's pincode, then the user's district, then
// the whole state. centerID <= 0 means no center preference.
func SelectTier(u model.User, centerID int, eligible []model.AppointmentSlot) (model.Tier, []model.AppointmentSlot) {
	if len(eligible) == 0 {
		return model.TierNone, nil
	}
	tiers := []struct {
		tier  model.Tier
		match func(model.AppointmentSlot) bool
	}{
		{model.TierCenter, func(s model.AppointmentSlot) bool { return centerID > 0 && s.CenterID == centerID }},
		{model.TierPincode, func(s model.AppointmentSlot) bool { return u.Pincode != "" && s.Pincode == u.Pincode }},
		{model.TierDistrict, func(s model.AppointmentSlot) bool { return sameName(s.DistrictName, u.District) }},
	}
	for _, t := range tiers {
		var working []model.AppointmentSlot
		for _, s := range eligible {
			if t.match(s) {
				working = append(working, s)
			}
		}
		if len(working) > 0 {
			return t.tier, working
		}
	}
	return model.TierState, eligible
}

// SelectWinner ranks the working set by distance from the user's home and then
// by date. Ties keep fetch order.
func SelectWinner(ctx context.Context, estimator distance.Estimator, u model.User, working []model.AppointmentSlot) (model.AppointmentSlot, float64, error) {
	type ranked struct {
		slot     model.AppointmentSlot
		distance float64
	}
	if len(working) == 0 {
		return model.AppointmentSlot{}, 0, ErrNoSlots
	}
	rows := make([]ranked, 0, len(working))
	for _, s := range working {
		d, err := estimator.Distance(ctx, u.Location(), s.Destination())
		if err != nil {
			return model.AppointmentSlot{}, 0, err
		}
		rows = append(rows, ranked{slot: s, distance: d})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].distance != rows[j].distance {
			return rows[i].distance < rows[j].distance
		}
		return rows[i].slot.Day().Before(rows[j].slot.Day())
	})
	return rows[0].slot, rows[0].distance, nil
}

func sameName(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
