package notify

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidPhone is returned when none of the recipient numbers can be parsed.
	ErrInvalidPhone = errors.New("notify: no valid phone number")
	// ErrSkipped is returned by a channel that has nothing to send to, e.g. no email address.
	ErrSkipped = errors.New("notify: recipient has no address for this channel")
)

// Notifier delivers a message to a recipient over one channel.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, msg Message) error
	Channel() string
}

// Multi delivers over every channel. It succeeds when at least one channel
// delivered the message.
type Multi struct {
	channels []Notifier
	logger   zerolog.Logger
}

// NewMulti godoc
func NewMulti(logger zerolog.Logger, channels ...Notifier) *Multi {
	return &Multi{channels: channels, logger: logger}
}

// Channel godoc
func (m *Multi) Channel() string {
	names := make([]string, 0, len(m.channels))
	for _, c := range m.channels {
		names = append(names, c.Channel())
	}
	return strings.Join(names, "+")
}

// Notify godoc
func (m *Multi) Notify(ctx context.Context, to Recipient, msg Message) error {
	delivered := 0
	var failures []string
	for _, c := range m.channels {
		err := c.Notify(ctx, to, msg)
		switch {
		case err == nil:
			delivered++
			m.logger.Debug().Str("channel", c.Channel()).Msg("Notification delivered")
		case errors.Is(err, ErrSkipped):
			m.logger.Debug().Str("channel", c.Channel()).Msg("Notification channel skipped")
		default:
			m.logger.Warn().Err(err).Str("channel", c.Channel()).Msg("Notification channel failed")
			failures = append(failures, c.Channel()+": "+err.Error())
		}
	}
	if delivered > 0 {
		return nil
	}
	if len(failures) == 0 {
		return ErrSkipped
	}
	return errors.Errorf("notify: every channel failed (%s)", strings.Join(failures, "; "))
}

// Log writes messages to the log instead of sending them.
type Log struct {
	logger zerolog.Logger
}

// NewLog godoc
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Channel godoc
func (l *Log) Channel() string {
	return "log"
}

// Notify godoc
func (l *Log) Notify(ctx context.Context, to Recipient, msg Message) error {
	l.logger.Info().Str("to", to.Phone).Str("message", msg.Text).Msg("Dry run notification")
	return nil
}
