package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"cowin-notifier/config"
	"cowin-notifier/cowin"
	"cowin-notifier/directory"
	"cowin-notifier/distance"
	"cowin-notifier/matcher"
	"cowin-notifier/notify"
	"cowin-notifier/store"
)

// newCowinClient godoc
func newCowinClient(cfg config.Config) *cowin.Client {
	return cowin.NewClient(cfg.Cowin.BaseURL, cfg.Cowin.UserAgent, cfg.Cowin.Timeout)
}

// newEngine wires the matching engine and its collaborators from the configuration.
func newEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*matcher.Engine, error) {
	client := newCowinClient(cfg)

	dir, err := directory.Load(ctx, cfg.Directory.File, client, logger)
	if err != nil {
		return nil, err
	}

	estimator, err := newEstimator(cfg.Distance)
	if err != nil {
		return nil, err
	}

	composer, err := notify.NewComposer()
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	return matcher.New(matcher.Deps{
		Source:    client,
		Directory: dir,
		Distance:  estimator,
		Composer:  composer,
		Notifier:  notifier,
		Waiting:   store.NewWaitingList(cfg.Store.WaitingList, logger),
		Completed: store.NewCompleted(cfg.Store.CompletedList),
	}, matcher.Options{
		DaysAhead:       cfg.Polling.DaysAhead,
		DefaultCenterID: cfg.Matching.DefaultCenterID,
		DumpDir:         cfg.Store.DumpDir,
	}, logger), nil
}

func newEstimator(cfg config.DistanceConfig) (distance.Estimator, error) {
	switch cfg.Provider {
	case "google":
		google, err := distance.NewGoogle(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return distance.NewCached(google), nil
	case "", "none":
		return distance.Constant{}, nil
	}
	return nil, errors.Errorf("unknown distance provider %q", cfg.Provider)
}

func newNotifier(cfg config.Config, logger zerolog.Logger) (notify.Notifier, error) {
	var channels []notify.Notifier
	if cfg.SMS.DryRun {
		channels = append(channels, notify.NewLog(logger))
	} else {
		channels = append(channels, notify.NewSMS(cfg.SMS.SMSOptions()))
	}
	switch cfg.Email.Provider {
	case "smtp":
		channels = append(channels, notify.NewSMTP(cfg.Email.SMTPOptions()))
	case "sendgrid":
		channels = append(channels, notify.NewSendgrid(cfg.Email.Sendgrid.Key, cfg.Email.From))
	case "", "none":
	default:
		return nil, errors.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
	return notify.NewMulti(logger, channels...), nil
}
