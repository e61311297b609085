package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"cowin-notifier/cowin"
	"cowin-notifier/monitor"
	"cowin-notifier/notify"
	"cowin-notifier/poller"
)

// Config structure
type Config struct {
	Polling    PollingConfig   `mapstructure:"polling"`
	Matching   MatchingConfig  `mapstructure:"matching"`
	Store      StoreConfig     `mapstructure:"store"`
	Directory  DirectoryConfig `mapstructure:"directory"`
	Cowin      CowinConfig     `mapstructure:"cowin"`
	Distance   DistanceConfig  `mapstructure:"distance"`
	SMS        SMSConfig       `mapstructure:"sms"`
	Email      EmailConfig     `mapstructure:"email"`
	Monitoring monitor.Config  `mapstructure:"monitoring"`
}

// PollingConfig godoc
type PollingConfig struct {
	// Interval in seconds between two passes
	Interval  int `mapstructure:"interval"`
	DaysAhead int `mapstructure:"days_ahead"`
}

// MatchingConfig godoc
type MatchingConfig struct {
	DefaultCenterID int `mapstructure:"default_center_id"`
}

// StoreConfig godoc
type StoreConfig struct {
	WaitingList   string `mapstructure:"waiting_list"`
	CompletedList string `mapstructure:"completed_list"`
	DumpDir       string `mapstructure:"dump_dir"`
}

// DirectoryConfig godoc
type DirectoryConfig struct {
	File string `mapstructure:"file"`
}

// CowinConfig godoc
type CowinConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DistanceConfig godoc
type DistanceConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
}

// SMSConfig godoc
type SMSConfig struct {
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	SenderID string        `mapstructure:"sender_id"`
	Route    string        `mapstructure:"route"`
	Country  string        `mapstructure:"country"`
	Timeout  time.Duration `mapstructure:"timeout"`
	DryRun   bool          `mapstructure:"dry_run"`
}

// EmailConfig godoc
type EmailConfig struct {
	Provider string `mapstructure:"provider"`
	From     string `mapstructure:"from"`
	SMTP     struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`
	Sendgrid struct {
		Key string `mapstructure:"key"`
	} `mapstructure:"sendgrid"`
}

// SMSOptions converts the sms section for the notifier.
func (c SMSConfig) SMSOptions() notify.SMSConfig {
	return notify.SMSConfig{
		URL:      c.URL,
		APIKey:   c.APIKey,
		SenderID: c.SenderID,
		Route:    c.Route,
		Country:  c.Country,
		Timeout:  c.Timeout,
	}
}

// SMTPOptions converts the smtp section for the notifier.
func (c EmailConfig) SMTPOptions() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.From,
	}
}

// OpenConfig reads the configuration file into viper.
func OpenConfig(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	v.SetConfigType("yaml")
	v.SetConfigName(".config")
	v.AddConfigPath(".")                    // First try to load the config from the current directory
	v.AddConfigPath("$HOME")                // Then try to load it from the HOME directory
	v.AddConfigPath("/etc/cowin-notifier/") // As a last resort try to load it from /etc/
	v.SetEnvPrefix("CFG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && file == "" {
			// defaults and environment are enough to run
			return nil
		}
		return errors.Wrap(err, "config: read configuration file")
	}
	return nil
}

// SetDefaults godoc
func SetDefaults(v *viper.Viper) {
	v.SetDefault("polling.interval", poller.DefaultInterval)
	v.SetDefault("polling.days_ahead", 1)
	v.SetDefault("matching.default_center_id", 0)
	v.SetDefault("store.waiting_list", "waiting_list.csv")
	v.SetDefault("store.completed_list", "completed_list.csv")
	v.SetDefault("store.dump_dir", "")
	v.SetDefault("directory.file", "./libs/districts.csv")
	v.SetDefault("cowin.base_url", cowin.DefaultBaseURL)
	v.SetDefault("cowin.user_agent", cowin.DefaultUserAgent)
	v.SetDefault("cowin.timeout", 30*time.Second)
	v.SetDefault("distance.provider", "none")
	v.SetDefault("distance.api_key", "")
	v.SetDefault("sms.url", notify.DefaultSMSURL)
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.sender_id", "TXTIND")
	v.SetDefault("sms.route", "v3")
	v.SetDefault("sms.country", "IN")
	v.SetDefault("sms.timeout", 30*time.Second)
	v.SetDefault("sms.dry_run", false)
	v.SetDefault("email.provider", "none")
	v.SetDefault("email.from", "")
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", "587")
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.sendgrid.key", "")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.listen", ":9102")
}

// LoadConfig decodes and validates the configuration.
func LoadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "config: decode")
	}
	return cfg, cfg.Validate()
}

// Validate godoc
func (cfg Config) Validate() error {
	if err := validatePolling(cfg.Polling); err != nil {
		return err
	}
	if err := validateStore(cfg.Store); err != nil {
		return err
	}
	if err := validateDistance(cfg.Distance); err != nil {
		return err
	}
	if err := validateSMS(cfg.SMS); err != nil {
		return err
	}
	return validateEmail(cfg.Email)
}

func validatePolling(cfg PollingConfig) error {
	if cfg.Interval <= 0 {
		return errors.New("the polling interval needs to be a positive number of seconds (polling.interval)")
	}
	if cfg.DaysAhead <= 0 {
		return errors.New("the appointment date offset needs to be at least one day (polling.days_ahead)")
	}
	return nil
}

func validateStore(cfg StoreConfig) error {
	if strings.TrimSpace(cfg.WaitingList) == "" {
		return errors.New("the waiting list needs to be a path to a csv file (store.waiting_list)")
	}
	if strings.TrimSpace(cfg.CompletedList) == "" {
		return errors.New("the completed list needs to be a path to a csv file (store.completed_list)")
	}
	if cfg.WaitingList == cfg.CompletedList {
		return errors.New("the waiting and completed lists need to be different files")
	}
	return nil
}

func validateDistance(cfg DistanceConfig) error {
	switch cfg.Provider {
	case "", "none":
		return nil
	case "google":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return errors.New("the google distance provider needs an api key (distance.api_key)")
		}
		return nil
	}
	return errors.Errorf("invalid distance provider %q. allowed values are 'none', 'google'", cfg.Provider)
}

func validateSMS(cfg SMSConfig) error {
	if cfg.DryRun {
		return nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return errors.New("the sms api key needs to be a valid value (sms.api_key)")
	}
	return nil
}

func validateEmail(cfg EmailConfig) error {
	switch cfg.Provider {
	case "", "none":
		return nil
	case "smtp":
		if strings.TrimSpace(cfg.SMTP.Host) == "" {
			return errors.New("the smtp host needs to be a valid value (email.smtp.host)")
		}
		port, err := strconv.Atoi(strings.TrimSpace(cfg.SMTP.Port))
		if err != nil || port <= 0 {
			return errors.New("the smtp port needs to be a valid port number (email.smtp.port)")
		}
		if strings.TrimSpace(cfg.SMTP.Password) == "" {
			return errors.New("the smtp password needs to be a valid string (email.smtp.password)")
		}
	case "sendgrid":
		if strings.TrimSpace(cfg.Sendgrid.Key) == "" {
			return errors.New("the sendgrid key needs to be a valid value (email.sendgrid.key)")
		}
	default:
		return errors.Errorf("invalid email provider %q. allowed values are 'none', 'smtp', 'sendgrid'", cfg.Provider)
	}
	if err := checkmail.ValidateFormat(strings.TrimSpace(cfg.From)); err != nil {
		return errors.New("the sender needs to be a valid email (email.from)")
	}
	return nil
}
