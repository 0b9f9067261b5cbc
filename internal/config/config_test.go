package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDialerConfigDefaults(t *testing.T) {
	t.Setenv("AMI_SECRET", "s3cret")

	cfg, err := New[DialerConfig]()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AMIPort != 5038 || cfg.RoomDigits != 6 || !cfg.LenientMonitoring {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MonitorPoll() != 2*time.Second || cfg.MonitorMaxWait() != 30*time.Second || cfg.MonitorGrace() != 10*time.Second {
		t.Errorf("unexpected monitor timings: %v %v %v", cfg.MonitorPoll(), cfg.MonitorMaxWait(), cfg.MonitorGrace())
	}
	if cfg.LegSettle() != 2*time.Second || cfg.OriginateTimeout() != 30*time.Second {
		t.Errorf("unexpected origination timings")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestNewDialerConfigRequiresSecret(t *testing.T) {
	t.Setenv("AMI_SECRET", "")
	os.Unsetenv("AMI_SECRET")
	if _, err := New[DialerConfig](); err == nil {
		t.Error("expected missing AMI_SECRET to fail")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("AMI_SECRET", "x")
	t.Setenv("STORE_BACKEND", "postgres")
	if _, err := New[DialerConfig](); err == nil {
		t.Error("expected unknown backend to fail")
	}

	t.Setenv("STORE_BACKEND", "redis")
	cfg, err := New[DialerConfig]()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.MonitorGraceMs = cfg.MonitorMaxWaitMs + 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected grace beyond max wait to fail")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.dialer")
	if err := os.WriteFile(path, []byte("CONFDIALER_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("CONFDIALER_TEST_VALUE") })

	if err := LoadEnv(); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("CONFDIALER_TEST_VALUE"); got != "from-file" {
		t.Errorf("got %q, want from-file", got)
	}
}
