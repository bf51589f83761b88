package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/AlfredBerg/rod-records/internal/browser"
	"github.com/AlfredBerg/rod-records/internal/capture"
	"github.com/AlfredBerg/rod-records/internal/config"
	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/AlfredBerg/rod-records/internal/crawl"
	"github.com/AlfredBerg/rod-records/internal/outputHandlers/sqlite"
	"github.com/AlfredBerg/rod-records/internal/parcel"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rod-records.yaml)")

	f := rootCmd.Flags()
	f.StringP("input", "i", "", "A CSV or xlsx file with a TMS and a County column. If empty CSV is read from stdin.")
	f.StringP("output", "o", viper.GetString("output"), "The directory that gets one folder of documents per parcel.")
	f.String("downloads", viper.GetString("downloads"), "The directory the browser saves printouts to.")
	f.String("manifest", viper.GetString("manifest"), "A sqlite file recording the outcome of every parcel. Empty disables it.")
	f.Bool("headless", viper.GetBool("headless"), "Run the browser without a window.")
	f.String("user-data-dir", "", "The browser profile to use, needed by the dialog print mode.")
	f.String("print-mode", viper.GetString("print_mode"), "How pages are saved: pdf prints through the browser protocol, dialog through window.print.")
	f.Duration("timeout", viper.GetDuration("timeout"), "The maximum time to wait for a page element or a new window.")
	f.Duration("capture-timeout", viper.GetDuration("capture_timeout"), "The maximum time to wait for a printout to appear in the download directory.")
	f.Duration("poll-interval", viper.GetDuration("poll_interval"), "How often the download directory is scanned while waiting for a printout.")
	f.Duration("parcel-timeout", 0, "The maximum time to spend on one parcel, 0 for no limit.")
	f.String("book-type", viper.GetString("berkeley.book_type"), "The book type Berkeley deeds are searched under.")
	f.BoolP("verbose", "v", false, "Log every navigation step.")

	bind := map[string]string{
		"input":              "input",
		"output":             "output",
		"downloads":          "downloads",
		"manifest":           "manifest",
		"headless":           "headless",
		"user_data_dir":      "user-data-dir",
		"print_mode":         "print-mode",
		"timeout":            "timeout",
		"capture_timeout":    "capture-timeout",
		"poll_interval":      "poll-interval",
		"parcel_timeout":     "parcel-timeout",
		"berkeley.book_type": "book-type",
		"verbose":            "verbose",
	}
	for key, flag := range bind {
		cobra.CheckErr(viper.BindPFlag(key, f.Lookup(flag)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".rod-records" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rod-records")
	}

	viper.SetEnvPrefix("RODRECORDS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

var rootCmd = &cobra.Command{
	Use:   "rod-records",
	Short: "Saves the property card, tax documents and deeds of county parcels as PDF files",

	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		return records(cmd.Context(), c)
	},
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func readParcels(input string) ([]parcel.Request, error) {
	if input == "" {
		return parcel.ReadCSV(os.Stdin)
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parcel.Read(input, f)
}

func records(ctx context.Context, c config.Config) error {
	log, err := newLogger(c.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	parcels, err := readParcels(c.Input)
	if err != nil {
		return fmt.Errorf("read parcels: %w", err)
	}

	fs := afero.NewOsFs()
	for _, dir := range []string{c.Output, c.Downloads} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	session, err := browser.NewRodSession(browser.RodOptions{
		Headless:    c.Headless,
		Downloads:   c.Downloads,
		UserDataDir: c.UserDataDir,
		PrintMode:   browser.PrintMode(c.PrintMode),
		Wait:        c.Timeout,
	}, log)
	if err != nil {
		return err
	}

	capturer := capture.New(session, fs, c.Downloads, log)
	capturer.Timeout = c.CaptureTimeout
	capturer.PollInterval = c.PollInterval

	job := crawl.Job{
		Session: session,
		Navigators: map[parcel.Jurisdiction]county.Navigator{
			parcel.Charleston: county.NewCharleston(c.CharlestonOptions()),
			parcel.Berkeley:   county.NewBerkeley(c.BerkeleyOptions()),
		},
		Capturer:      capturer,
		OutputRoot:    c.Output,
		Fs:            fs,
		Logger:        log,
		ParcelTimeout: c.ParcelTimeout,
		Wait:          c.Timeout,
	}

	if c.Manifest != "" {
		outputHandler := &sqlite.SqliteOutput{Database: c.Manifest, Logger: log}
		if err := outputHandler.Init(); err != nil {
			_ = session.Close()
			return fmt.Errorf("open manifest: %w", err)
		}
		defer func() {
			if err := outputHandler.Cleanup(); err != nil {
				log.Warn("failed to close manifest", zap.Error(err))
			}
		}()
		job.OutputHandler = outputHandler
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	sum := job.Run(ctx, parcels)
	if sum.Failed > 0 {
		log.Warn("some parcels were not fully retrieved", zap.Int("failed", sum.Failed))
	}
	return nil
}
