package config

import (
	"strings"
	"testing"
	"time"

	"github.com/AlfredBerg/rod-records/internal/county"
	"github.com/AlfredBerg/rod-records/internal/deeds"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "property_records", c.Output)
	assert.Equal(t, 15*time.Second, c.Timeout)
	assert.Equal(t, 10*time.Second, c.CaptureTimeout)
	assert.Equal(t, time.Second, c.PollInterval)
	assert.Equal(t, time.Duration(0), c.ParcelTimeout)
	assert.Equal(t, 280, c.CharlestonOptions().MinBook)
	assert.Equal(t, county.CharlestonRegisterURL, c.CharlestonOptions().RegisterURL)
	assert.Equal(t, county.OldRealProperty, c.BerkeleyOptions().BookType(deeds.Reference{}))
}

func TestLoadYAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
output: /data/records
timeout: 30s
headless: false
print_mode: dialog
charleston:
  min_book: 300
berkeley:
  book_type: record book
`)))

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/data/records", c.Output)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, "dialog", c.PrintMode)
	assert.Equal(t, 300, c.CharlestonOptions().MinBook)
	assert.Equal(t, county.RecordBook, c.BerkeleyOptions().BookType(deeds.Reference{}))
	assert.Equal(t, county.BerkeleyDeedsURL, c.Berkeley.DeedsURL)
}

func TestValidate(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("print_mode", "fax")
	v.Set("berkeley.book_type", "plats")
	v.Set("output", "")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "print mode")
	assert.Contains(t, err.Error(), "plats")
	assert.Contains(t, err.Error(), "output directory")
}

func TestValidateRejectsHeadlessDialogPrinting(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("print_mode", "dialog")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "headless")

	v.Set("headless", false)
	_, err = Load(v)
	assert.NoError(t, err)
}
