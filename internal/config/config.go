package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/spf13/viper"
)

type Charleston struct {
	ServicesURL string `mapstructure:"services_url"`
	RegisterURL string `mapstructure:"register_url"`
	MinBook     int    `mapstructure:"min_book"`
}

type Berkeley struct {
	CardURL  string `mapstructure:"card_url"`
	TaxURL   string `mapstructure:"tax_url"`
	DeedsURL string `mapstructure:"deeds_url"`
	// BookType is the provisional book type every deed is searched under.
	BookType string `mapstructure:"book_type"`
}

type Config struct {
	Input     string `mapstructure:"input"`
	Output    string `mapstructure:"output"`
	Downloads string `mapstructure:"downloads"`
	Manifest  string `mapstructure:"manifest"`

	Headless    bool   `mapstructure:"headless"`
	UserDataDir string `mapstructure:"user_data_dir"`
	PrintMode   string `mapstructure:"print_mode"`

	Timeout        time.Duration `mapstructure:"timeout"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ParcelTimeout  time.Duration `mapstructure:"parcel_timeout"`

	Verbose bool `mapstructure:"verbose"`

	Charleston Charleston `mapstructure:"charleston"`
	Berkeley   Berkeley   `mapstructure:"berkeley"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output", "property_records")
	v.SetDefault("downloads", "downloads")
	v.SetDefault("manifest", "records.db")
	v.SetDefault("headless", true)
	v.SetDefault("print_mode", string(browser.PrintPDF))
	v.SetDefault("timeout", browser.DefaultWait)
	v.SetDefault("capture_timeout", 10*time.Second)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("parcel_timeout", time.Duration(0))

	v.SetDefault("charleston.services_url", county.CharlestonServicesURL)
	v.SetDefault("charleston.register_url", county.CharlestonRegisterURL)
	v.SetDefault("charleston.min_book", county.CharlestonMinBook)
	v.SetDefault("berkeley.card_url", county.BerkeleyCardURL)
	v.SetDefault("berkeley.tax_url", county.BerkeleyTaxURL)
	v.SetDefault("berkeley.deeds_url", county.BerkeleyDeedsURL)
	v.SetDefault("berkeley.book_type", string(county.OldRealProperty))
}

func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Output == "" {
		errs = append(errs, errors.New("output directory is empty"))
	}
	if c.Downloads == "" {
		errs = append(errs, errors.New("download directory is empty"))
	}
	switch browser.PrintMode(c.PrintMode) {
	case browser.PrintPDF, browser.PrintDialog:
	default:
		errs = append(errs, fmt.Errorf("print mode %q is neither %q nor %q", c.PrintMode, browser.PrintPDF, browser.PrintDialog))
	}
	if c.Headless && browser.PrintMode(c.PrintMode) == browser.PrintDialog {
		errs = append(errs, fmt.Errorf("print mode %q needs a visible browser, headless browsers ignore window.print", browser.PrintDialog))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.CaptureTimeout <= 0 || c.PollInterval <= 0 {
		errs = append(errs, errors.New("capture timeout and poll interval must be positive"))
	}
	if c.ParcelTimeout < 0 {
		errs = append(errs, errors.New("parcel timeout must not be negative"))
	}
	if _, err := county.ParseBookTypePolicy(c.Berkeley.BookType); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) CharlestonOptions() county.CharlestonOptions {
	return county.CharlestonOptions{
		ServicesURL: c.Charleston.ServicesURL,
		RegisterURL: c.Charleston.RegisterURL,
		MinBook:     c.Charleston.MinBook,
	}
}

// BerkeleyOptions assumes c has been validated.
func (c Config) BerkeleyOptions() county.BerkeleyOptions {
	policy, _ := county.ParseBookTypePolicy(c.Berkeley.BookType)
	return county.BerkeleyOptions{
		CardURL:  c.Berkeley.CardURL,
		TaxURL:   c.Berkeley.TaxURL,
		DeedsURL: c.Berkeley.DeedsURL,
		BookType: policy,
	}
}
