package matcher

import (
	"context"

	"cowin-notifier/model"
	"cowin-notifier/monitor"
)

// passCache memoizes district queries for one pass. A new pass starts with a
// new cache because the date moves and capacities change between passes.
type passCache struct {
	date    string
	source  SlotSource
	entries map[int][]model.AppointmentSlot
}

func newPassCache(source SlotSource, date string) *passCache {
	return &passCache{
		date:    date,
		source:  source,
		entries: make(map[int][]model.AppointmentSlot),
	}
}

// fetch returns the slots of a district, querying the source on first use.
// Failed queries are not cached so a later user of the same pass retries.
func (c *passCache) fetch(ctx context.Context, districtID int) ([]model.AppointmentSlot, error) {
	if slots, ok := c.entries[districtID]; ok {
		monitor.SlotRequestsTotal.WithLabelValues("hit").Inc()
		return slots, nil
	}
	monitor.SlotRequestsTotal.WithLabelValues("miss").Inc()
	slots, err := c.source.CalendarByDistrict(ctx, districtID, c.date)
	if err != nil {
		return nil, err
	}
	c.entries[districtID] = slots
	return slots, nil
}
