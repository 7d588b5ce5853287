package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func validMountConfig(t *testing.T) Config {
	t.Helper()
	v := newViper()
	v.Set(KeyLogGroupName, "/aws/lambda/app")
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.MountPoint = "/mnt/logs"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := validMountConfig(t)

	if cfg.BucketWidth != DefaultBucketWidth {
		t.Errorf("BucketWidth = %s, want %s", cfg.BucketWidth, DefaultBucketWidth)
	}
	if cfg.FileSize != DefaultFileSize {
		t.Errorf("FileSize = %d, want %d", cfg.FileSize, DefaultFileSize)
	}
	if cfg.LineFormat != DefaultLineFormat {
		t.Errorf("LineFormat = %q", cfg.LineFormat)
	}
	if cfg.EpochSource != EpochCreation {
		t.Errorf("EpochSource = %q, want %q", cfg.EpochSource, EpochCreation)
	}
	if cfg.TPS != DefaultTPS || cfg.PageRetries != DefaultPageRetries || cfg.PageSize != DefaultPageSize {
		t.Errorf("remote defaults = tps %d retries %d page %d", cfg.TPS, cfg.PageRetries, cfg.PageSize)
	}
	if cfg.InstanceID == "" {
		t.Error("InstanceID should never be empty")
	}
	if err := cfg.ValidateMount(); err != nil {
		t.Errorf("ValidateMount: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CWL_MOUNT_LOG_GROUP_NAME", "/from/env")
	t.Setenv("CWL_MOUNT_BUCKET_WIDTH", "5m")
	t.Setenv("CWL_MOUNT_CACHE_COMPRESS", "true")

	v := newViper()
	BindEnv(v)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogGroupName != "/from/env" {
		t.Errorf("LogGroupName = %q", cfg.LogGroupName)
	}
	if cfg.BucketWidth != 5*time.Minute {
		t.Errorf("BucketWidth = %s, want 5m", cfg.BucketWidth)
	}
	if !cfg.CacheCompress {
		t.Error("CacheCompress should be true")
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in     string
		source string
		want   time.Time
	}{
		{"", EpochCreation, time.Time{}},
		{"creation", EpochCreation, time.Time{}},
		{"first-event", EpochFirstEvent, time.Time{}},
		{"2021-12-04", EpochExplicit, time.Date(2021, 12, 4, 0, 0, 0, 0, time.UTC)},
		{"2021-12-04T07:00:00+09:00", EpochExplicit, time.Date(2021, 12, 3, 22, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, source, err := ParseEpoch(tt.in)
			if err != nil {
				t.Fatalf("ParseEpoch: %v", err)
			}
			if source != tt.source || !got.Equal(tt.want) {
				t.Errorf("ParseEpoch(%q) = %s/%s, want %s/%s", tt.in, got, source, tt.want, tt.source)
			}
		})
	}

	if _, _, err := ParseEpoch("yesterday"); err == nil {
		t.Error("ParseEpoch(yesterday) succeeded, want error")
	}
}

func TestValidateMount(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"missing mount point", func(c *Config) { c.MountPoint = "" }, "mount point"},
		{"missing log group", func(c *Config) { c.LogGroupName = "" }, "--log-group-name"},
		{"sub-minute bucket", func(c *Config) { c.BucketWidth = 30 * time.Second }, "--bucket-width"},
		{"bucket not dividing day", func(c *Config) { c.BucketWidth = 7 * time.Minute }, "--bucket-width"},
		{"negative file size", func(c *Config) { c.FileSize = -1 }, "--file-size"},
		{"zero cache", func(c *Config) { c.CacheMaxBytes = 0 }, "--cache-bytes"},
		{"negative retries", func(c *Config) { c.PageRetries = -1 }, "--page-retries"},
		{"page size too large", func(c *Config) { c.PageSize = 10001 }, "--page-size"},
		{"sweep interval", func(c *Config) { c.CacheSweepInterval = 0 }, "--cache-sweep-interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validMountConfig(t)
			tt.modify(&cfg)
			err := cfg.ValidateMount()
			if err == nil {
				t.Fatal("ValidateMount succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateMountReportsAllProblems(t *testing.T) {
	cfg := validMountConfig(t)
	cfg.MountPoint = ""
	cfg.PageRetries = -1

	err := cfg.ValidateMount()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"mount point", "--page-retries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
