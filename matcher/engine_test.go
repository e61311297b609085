package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"cowin-notifier/distance"
	"cowin-notifier/model"
	"cowin-notifier/notify"
)

type fakeSource struct {
	slots map[int][]model.AppointmentSlot
	fail  map[int]bool
	calls []string
}

func (f *fakeSource) CalendarByDistrict(ctx context.Context, districtID int, date string) ([]model.AppointmentSlot, error) {
	f.calls = append(f.calls, date)
	if f.fail[districtID] {
		return nil, errors.New("connection reset")
	}
	return f.slots[districtID], nil
}

type fakeDirectory map[string][]int

func (f fakeDirectory) DistrictIDs(state string) []int { return f[state] }

type fakeWaiting struct {
	users     []model.User
	removeErr error
	removed   []string
}

func (f *fakeWaiting) Load() ([]model.User, error) {
	return append([]model.User(nil), f.users...), nil
}

func (f *fakeWaiting) Remove(ids ...string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
		f.removed = append(f.removed, id)
	}
	kept := f.users[:0:0]
	for _, u := range f.users {
		if !drop[u.ID] {
			kept = append(kept, u)
		}
	}
	f.users = kept
	return nil
}

type fakeCompleted struct {
	users     []model.User
	appendErr error
}

func (f *fakeCompleted) Append(u model.User) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	for _, c := range f.users {
		if c.ID == u.ID {
			return nil
		}
	}
	f.users = append(f.users, u)
	return nil
}

type sent struct {
	to  notify.Recipient
	msg notify.Message
}

type fakeNotifier struct {
	err  error
	sent []sent
}

func (f *fakeNotifier) Channel() string { return "fake" }

func (f *fakeNotifier) Notify(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to: to, msg: msg})
	return nil
}

func countIn(users []model.User, id string) int {
	n := 0
	for _, u := range users {
		if u.ID == id {
			n++
		}
	}
	return n
}

func TestEnginePass(t *testing.T) {
	logger := zerolog.Nop()
	passStart := time.Date(2021, time.May, 16, 9, 0, 0, 0, time.UTC)

	Convey("Given a waiting list and a district calendar", t, func() {
		user := model.User{
			ID:          "u-asha",
			Name:        "Asha Rao",
			Age:         30,
			Place:       "Jayanagar",
			Pincode:     "560001",
			District:    "Bangalore Urban",
			State:       "Karnataka",
			PhoneNumber: "9845012345",
		}
		districtSlot := model.AppointmentSlot{CenterID: 1, CenterName: "PHC Jayanagar", DistrictName: "Bangalore Urban", Pincode: "560002", MinAgeLimit: 18, AvailableCapacity: 5, Date: "17-05-2021", Vaccine: "COVISHIELD", FeeType: "Free"}
		pinButTooYoung := model.AppointmentSlot{CenterID: 2, CenterName: "CHC", DistrictName: "Bangalore Urban", Pincode: "560001", MinAgeLimit: 45, AvailableCapacity: 3, Date: "17-05-2021"}

		source := &fakeSource{slots: map[int][]model.AppointmentSlot{265: {districtSlot, pinButTooYoung}}}
		directory := fakeDirectory{"Karnataka": {265, 294}}
		waiting := &fakeWaiting{users: []model.User{user}}
		completed := &fakeCompleted{}
		notifier := &fakeNotifier{}
		composer, err := notify.NewComposer()
		So(err, ShouldBeNil)

		newEngine := func(opts Options) *Engine {
			e := New(Deps{
				Source:    source,
				Directory: directory,
				Distance:  distance.Constant{},
				Composer:  composer,
				Notifier:  notifier,
				Waiting:   waiting,
				Completed: completed,
			}, opts, logger)
			e.now = func() time.Time { return passStart }
			return e
		}

		Convey("it should notify the best district slot when the pincode tier is ineligible", func() {
			result, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(result.Date, ShouldEqual, "17-05-2021")
			So(source.calls, ShouldResemble, []string{"17-05-2021", "17-05-2021"})

			So(len(result.Notified), ShouldEqual, 1)
			So(result.Notified[0].Tier, ShouldEqual, model.TierDistrict)
			So(result.Notified[0].Slot.CenterID, ShouldEqual, 1)

			So(len(notifier.sent), ShouldEqual, 1)
			So(notifier.sent[0].to.Phone, ShouldEqual, "9845012345")
			So(notifier.sent[0].msg.Text, ShouldContainSubstring, "Center: PHC Jayanagar, pincode: 560002, district: Bangalore Urban.")

			Convey("and move the user from the waiting list to the completed list once", func() {
				So(countIn(waiting.users, user.ID), ShouldEqual, 0)
				So(countIn(completed.users, user.ID), ShouldEqual, 1)
			})
		})

		Convey("it should leave a user without eligible slots untouched", func() {
			source.slots[265] = []model.AppointmentSlot{pinButTooYoung}
			result, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(result.Notified, ShouldBeEmpty)
			So(notifier.sent, ShouldBeEmpty)
			So(waiting.users, ShouldResemble, []model.User{user})
			So(completed.users, ShouldBeEmpty)
		})

		Convey("it should leave a user untouched when the whole state has no slots", func() {
			source.slots = map[int][]model.AppointmentSlot{}
			result, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(result.Notified, ShouldBeEmpty)
			So(waiting.users, ShouldResemble, []model.User{user})
		})

		Convey("it should leave a user of an unknown state untouched", func() {
			waiting.users[0].State = "Atlantis"
			_, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(source.calls, ShouldBeEmpty)
			So(len(waiting.users), ShouldEqual, 1)
		})

		Convey("it should prefer the user's center over a pincode match", func() {
			centerSlot := model.AppointmentSlot{CenterID: 77, DistrictName: "BBMP", Pincode: "560100", MinAgeLimit: 18, AvailableCapacity: 1, Date: "18-05-2021"}
			pinSlot := model.AppointmentSlot{CenterID: 3, DistrictName: "Bangalore Urban", Pincode: "560001", MinAgeLimit: 18, AvailableCapacity: 1, Date: "17-05-2021"}
			source.slots[265] = []model.AppointmentSlot{pinSlot}
			source.slots[294] = []model.AppointmentSlot{centerSlot}

			Convey("from the user record", func() {
				waiting.users[0].CenterID = 77
				result, err := newEngine(Options{}).Pass(context.Background())
				So(err, ShouldBeNil)
				So(result.Notified[0].Tier, ShouldEqual, model.TierCenter)
				So(result.Notified[0].Slot.CenterID, ShouldEqual, 77)
			})

			Convey("from the configured default", func() {
				result, err := newEngine(Options{DefaultCenterID: 77}).Pass(context.Background())
				So(err, ShouldBeNil)
				So(result.Notified[0].Slot.CenterID, ShouldEqual, 77)
			})

			Convey("and fall back to the pincode without one", func() {
				result, err := newEngine(Options{}).Pass(context.Background())
				So(err, ShouldBeNil)
				So(result.Notified[0].Tier, ShouldEqual, model.TierPincode)
				So(result.Notified[0].Slot.CenterID, ShouldEqual, 3)
			})
		})

		Convey("Given two users of the same state", func() {
			ravi := user
			ravi.ID = "u-ravi"
			ravi.Name = "Ravi"
			ravi.Age = 20
			ravi.PhoneNumber = "9845012346"
			source.slots[265] = []model.AppointmentSlot{pinButTooYoung}
			waiting.users = []model.User{user, ravi}

			Convey("districts are fetched once per pass", func() {
				_, err := newEngine(Options{}).Pass(context.Background())
				So(err, ShouldBeNil)
				So(len(source.calls), ShouldEqual, 2)
			})

			Convey("every pass starts with an empty cache", func() {
				e := newEngine(Options{})
				_, err := e.Pass(context.Background())
				So(err, ShouldBeNil)
				e.now = func() time.Time { return passStart.Add(24 * time.Hour) }
				result, err := e.Pass(context.Background())
				So(err, ShouldBeNil)
				So(result.Date, ShouldEqual, "18-05-2021")
				So(source.calls, ShouldResemble, []string{"17-05-2021", "17-05-2021", "18-05-2021", "18-05-2021"})
			})

			Convey("a failed fetch skips the user and the next one is still handled", func() {
				source.fail = map[int]bool{294: true}
				source.slots[265] = []model.AppointmentSlot{districtSlot}
				result, err := newEngine(Options{}).Pass(context.Background())
				So(err, ShouldBeNil)
				So(result.Failed, ShouldEqual, 2)
				So(notifier.sent, ShouldBeEmpty)
				So(len(waiting.users), ShouldEqual, 2)
			})

			Convey("removing a matched user does not skip the next one", func() {
				source.slots[265] = []model.AppointmentSlot{districtSlot}
				result, err := newEngine(Options{}).Pass(context.Background())
				So(err, ShouldBeNil)
				So(len(result.Notified), ShouldEqual, 2)
				So(waiting.users, ShouldBeEmpty)
				So(len(completed.users), ShouldEqual, 2)
			})
		})

		Convey("a failed notification keeps the user waiting", func() {
			notifier.err = errors.New("gateway down")
			result, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(result.Failed, ShouldEqual, 1)
			So(len(waiting.users), ShouldEqual, 1)
			So(completed.users, ShouldBeEmpty)
		})

		Convey("a failed update is retried next pass without notifying again", func() {
			waiting.removeErr = errors.New("disk full")
			e := newEngine(Options{})
			_, err := e.Pass(context.Background())
			So(err, ShouldBeNil)
			So(len(notifier.sent), ShouldEqual, 1)
			So(len(waiting.users), ShouldEqual, 1)

			_, err = e.Pass(context.Background())
			So(err, ShouldBeNil)
			So(len(notifier.sent), ShouldEqual, 1)

			waiting.removeErr = nil
			_, err = e.Pass(context.Background())
			So(err, ShouldBeNil)
			So(len(notifier.sent), ShouldEqual, 1)
			So(waiting.users, ShouldBeEmpty)
			So(countIn(completed.users, user.ID), ShouldEqual, 1)
		})

		Convey("a user registered again after completing is notified again", func() {
			completed.users = []model.User{user}
			result, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(len(result.Notified), ShouldEqual, 1)
			So(len(notifier.sent), ShouldEqual, 1)
			So(waiting.users, ShouldBeEmpty)
			So(countIn(completed.users, user.ID), ShouldEqual, 1)
		})

		Convey("duplicate rows of one user get a single notification", func() {
			waiting.users = []model.User{user, user}
			result, err := newEngine(Options{}).Pass(context.Background())
			So(err, ShouldBeNil)
			So(len(result.Notified), ShouldEqual, 1)
			So(len(notifier.sent), ShouldEqual, 1)
			So(waiting.users, ShouldBeEmpty)
			So(countIn(completed.users, user.ID), ShouldEqual, 1)
		})

		Convey("a canceled context stops the pass", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := newEngine(Options{}).Pass(ctx)
			So(err, ShouldEqual, context.Canceled)
			So(notifier.sent, ShouldBeEmpty)
		})
	})
}
