package config_test

import (
	"os"
	"testing"

	"github.com/cuemby/warrenflow/pkg/config"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg := config.Load()
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.LogRetentionDays != 30 {
		t.Errorf("LogRetentionDays = %d, want 30", cfg.LogRetentionDays)
	}
	if cfg.MaxParallelNodes != 4 {
		t.Errorf("MaxParallelNodes = %d, want 4", cfg.MaxParallelNodes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	for k, v := range map[string]string{
		"DATA_DIR":                   "/var/warrenflow",
		"HTTP_PORT":                  "9090",
		"LOG_RETENTION_DAYS":         "14",
		"COMPRESS_AFTER_DAYS":        "2",
		"MAX_PARALLEL_NODES":         "8",
		"DEBOUNCE_MS":                "1500",
		"RECONCILE_INTERVAL_SECONDS": "60",
		"RECONCILE_DAILY_TIME":       "03:30",
	} {
		os.Setenv(k, v)
	}
	defer func() {
		for _, k := range []string{
			"DATA_DIR", "HTTP_PORT", "LOG_RETENTION_DAYS", "COMPRESS_AFTER_DAYS",
			"MAX_PARALLEL_NODES", "DEBOUNCE_MS", "RECONCILE_INTERVAL_SECONDS", "RECONCILE_DAILY_TIME",
		} {
			os.Unsetenv(k)
		}
	}()

	cfg := config.Load()
	if cfg.DataDir != "/var/warrenflow" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogRetentionDays != 14 {
		t.Errorf("LogRetentionDays = %d", cfg.LogRetentionDays)
	}
	if cfg.CompressAfterDays != 2 {
		t.Errorf("CompressAfterDays = %d", cfg.CompressAfterDays)
	}
	if cfg.MaxParallelNodes != 8 {
		t.Errorf("MaxParallelNodes = %d", cfg.MaxParallelNodes)
	}
	if cfg.DebounceMS != 1500 {
		t.Errorf("DebounceMS = %d", cfg.DebounceMS)
	}
	if cfg.ReconcileIntervalSeconds != 60 {
		t.Errorf("ReconcileIntervalSeconds = %d", cfg.ReconcileIntervalSeconds)
	}
	if cfg.ReconcileDailyTime != "03:30" {
		t.Errorf("ReconcileDailyTime = %q", cfg.ReconcileDailyTime)
	}
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := config.Load()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for empty DataDir")
	}
}

func TestValidate_RejectsCompressAfterNotLessThanRetention(t *testing.T) {
	cfg := config.Load()
	cfg.LogRetentionDays = 7
	cfg.CompressAfterDays = 7
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error when compress_after >= retention")
	}
}

func TestValidate_RejectsMalformedDailyTime(t *testing.T) {
	cfg := config.Load()
	cfg.ReconcileDailyTime = "25:99"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for malformed RECONCILE_DAILY_TIME")
	}
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	cfg := config.Load()
	cfg.ReconcileDailyTime = "03:30"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestCancelGrace_ConvertsMillisecondsToDuration(t *testing.T) {
	cfg := config.Load()
	cfg.CancelGraceMS = 2500
	if got, want := cfg.CancelGrace().Milliseconds(), int64(2500); got != want {
		t.Errorf("CancelGrace() = %dms, want %dms", got, want)
	}
}
