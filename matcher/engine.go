package matcher

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"cowin-notifier/distance"
	"cowin-notifier/model"
	"cowin-notifier/monitor"
	"cowin-notifier/notify"
	"cowin-notifier/store"
)

// SlotSource returns the appointment slots of a district for a date.
type SlotSource interface {
	CalendarByDistrict(ctx context.Context, districtID int, date string) ([]model.AppointmentSlot, error)
}

// Directory resolves a state to its district ids.
type Directory interface {
	DistrictIDs(state string) []int
}

// WaitingList is the table of users still waiting for a slot.
type WaitingList interface {
	Load() ([]model.User, error)
	Remove(ids ...string) error
}

// CompletedStore records notified users.
type CompletedStore interface {
	Append(u model.User) error
}

// Composer renders the notification of a slot.
type Composer interface {
	Compose(u model.User, slot model.AppointmentSlot) (notify.Message, error)
}

// Options tune a pass.
type Options struct {
	// DaysAhead is added to the pass start to get the appointment date.
	DaysAhead int
	// DefaultCenterID is the preferred center of users that have none, 0 disables the tier.
	DefaultCenterID int
	// DumpDir receives each user's candidate pool when set.
	DumpDir string
}

// Engine runs polling passes over the waiting list.
type Engine struct {
	source    SlotSource
	directory Directory
	distance  distance.Estimator
	composer  Composer
	notifier  notify.Notifier
	waiting   WaitingList
	completed CompletedStore
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	// notified but not yet persisted, retried at the start of every pass
	unpersisted map[string]model.User
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Source    SlotSource
	Directory Directory
	Distance  distance.Estimator
	Composer  Composer
	Notifier  notify.Notifier
	Waiting   WaitingList
	Completed CompletedStore
}

// New godoc
func New(deps Deps, opts Options, logger zerolog.Logger) *Engine {
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = 1
	}
	if deps.Distance == nil {
		deps.Distance = distance.Constant{}
	}
	return &Engine{
		source:      deps.Source,
		directory:   deps.Directory,
		distance:    deps.Distance,
		composer:    deps.Composer,
		notifier:    deps.Notifier,
		waiting:     deps.Waiting,
		completed:   deps.Completed,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
		unpersisted: make(map[string]model.User),
	}
}

// Match is the outcome of matching one user.
type Match struct {
	User     model.User
	Tier     model.Tier
	Slot     model.AppointmentSlot
	Distance float64
}

// PassResult summarizes a pass.
type PassResult struct {
	ID       string
	Date     string
	Users    int
	Notified []Match
	Failed   int
}

// Pass runs one sweep over a snapshot of the waiting list. Users are handled
// one at a time in list order; a failure only skips the user it happened to.
func (e *Engine) Pass(ctx context.Context) (PassResult, error) {
	start := e.now()
	result := PassResult{ID: xid.New().String(), Date: model.TargetDate(start, e.opts.DaysAhead)}
	logger := e.logger.With().Str("pass_id", result.ID).Str("date", result.Date).Logger()
	defer func() {
		monitor.PassDuration.Observe(time.Since(start).Seconds())
	}()

	e.retryPersist(logger)

	users, err := e.waiting.Load()
	if err != nil {
		monitor.PassesTotal.WithLabelValues("failed").Inc()
		return result, errors.Wrap(err, "matcher: load waiting list")
	}
	result.Users = len(users)
	monitor.WaitingUsers.Set(float64(len(users)))
	logger.Info().Int("users", len(users)).Msg("Polling started")

	// duplicate rows share an id, only the first one is notified
	handled := make(map[string]struct{})
	cache := newPassCache(e.source, result.Date)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			monitor.PassesTotal.WithLabelValues("canceled").Inc()
			return result, err
		}
		userLog := logger.With().Str("user_id", u.ID).Int("row", u.Row).Logger()

		if _, ok := e.unpersisted[u.ID]; ok {
			userLog.Debug().Msg("Already notified, waiting for the lists to be updated")
			continue
		}
		if _, ok := handled[u.ID]; ok {
			userLog.Debug().Msg("Duplicate row of a user notified in this pass")
			continue
		}

		match, ok, err := e.match(ctx, cache, u, userLog)
		if err != nil {
			result.Failed++
			monitor.FailuresTotal.WithLabelValues("match").Inc()
			userLog.Warn().Err(err).Msg("Skipping user for this pass")
			continue
		}
		if !ok {
			userLog.Debug().Msg("No slots available")
			continue
		}

		if err := e.notify(ctx, match); err != nil {
			result.Failed++
			monitor.FailuresTotal.WithLabelValues("notify").Inc()
			userLog.Warn().Err(err).Msg("Notification failed, user stays in the waiting list")
			continue
		}
		handled[u.ID] = struct{}{}
		monitor.NotificationsTotal.WithLabelValues(match.Tier.String()).Inc()
		result.Notified = append(result.Notified, match)
		userLog.Info().
			Str("tier", match.Tier.String()).
			Int("center_id", match.Slot.CenterID).
			Str("slot_date", match.Slot.Date).
			Float64("distance", match.Distance).
			Msg("User notified")

		if err := e.persist(u); err != nil {
			monitor.FailuresTotal.WithLabelValues("persist").Inc()
			userLog.Error().Err(err).Msg("Unable to move user to the completed list, retrying next pass")
		}
	}
	monitor.PassesTotal.WithLabelValues("done").Inc()
	logger.Info().Int("notified", len(result.Notified)).Int("failed", result.Failed).Msg("Polling finished")
	return result, nil
}

// match gathers the state wide pool of the user and picks the best slot.
func (e *Engine) match(ctx context.Context, cache *passCache, u model.User, logger zerolog.Logger) (Match, bool, error) {
	districts := e.directory.DistrictIDs(u.State)
	if len(districts) == 0 {
		logger.Debug().Str("state", u.State).Msg("No districts for state")
		return Match{}, false, nil
	}
	var pool []model.AppointmentSlot
	for _, id := range districts {
		slots, err := cache.fetch(ctx, id)
		if err != nil {
			return Match{}, false, errors.Wrapf(err, "district %d", id)
		}
		pool = append(pool, slots...)
	}
	if e.opts.DumpDir != "" {
		if path, err := store.DumpSlots(e.opts.DumpDir, cache.date, u, pool); err != nil {
			logger.Warn().Err(err).Msg("Unable to dump slots")
		} else {
			logger.Debug().Str("path", path).Int("slots", len(pool)).Msg("Slots dumped")
		}
	}

	centerID := u.CenterID
	if centerID == 0 {
		centerID = e.opts.DefaultCenterID
	}
	tier, working := SelectTier(u, centerID, Eligible(u, pool))
	if len(working) == 0 {
		return Match{}, false, nil
	}
	slot, dist, err := SelectWinner(ctx, e.distance, u, working)
	if err != nil {
		return Match{}, false, errors.Wrap(err, "distance")
	}
	return Match{User: u, Tier: tier, Slot: slot, Distance: dist}, true, nil
}

func (e *Engine) notify(ctx context.Context, m Match) error {
	msg, err := e.composer.Compose(m.User, m.Slot)
	if err != nil {
		return err
	}
	return e.notifier.Notify(ctx, notify.RecipientOf(m.User), msg)
}

// persist moves a notified user to the completed list. The completed row is
// written first so a crash in between leaves the user in both lists and the
// next run notifies again rather than losing the user.
func (e *Engine) persist(u model.User) error {
	if err := e.completed.Append(u); err != nil {
		e.unpersisted[u.ID] = u
		return errors.Wrap(err, "append completed")
	}
	if err := e.waiting.Remove(u.ID); err != nil {
		e.unpersisted[u.ID] = u
		return errors.Wrap(err, "remove from waiting list")
	}
	delete(e.unpersisted, u.ID)
	return nil
}

func (e *Engine) retryPersist(logger zerolog.Logger) {
	for id, u := range e.unpersisted {
		if err := e.persist(u); err != nil {
			logger.Error().Err(err).Str("user_id", id).Msg("Still unable to move user to the completed list")
			continue
		}
		logger.Info().Str("user_id", id).Msg("Moved previously notified user to the completed list")
	}
}
