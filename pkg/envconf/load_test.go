package envconf

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

type testConfig struct {
	Host     string        `env:"TEST_HOST"`
	Port     uint16        `env:"TEST_PORT" default:"8080"`
	Debug    bool          `env:"TEST_DEBUG" default:"false"`
	Timeout  time.Duration `env:"TEST_TIMEOUT" default:"5s"`
	Retries  int           `env:"TEST_RETRIES" default:"3"`
	LogLevel slog.Level    `env:"TEST_LOG_LEVEL" default:"INFO"`

	unexported string //nolint:unused
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_HOST", "db.internal")
	t.Setenv("TEST_PORT", "9090")
	t.Setenv("TEST_DEBUG", "true")
	t.Setenv("TEST_TIMEOUT", "250ms")
	t.Setenv("TEST_LOG_LEVEL", "WARN")

	cfg := new(testConfig)
	if err := Load(cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Host != "db.internal" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if !cfg.Debug {
		t.Error("Debug = false")
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d, want default 3", cfg.Retries)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TEST_HOST", "h")

	cfg := new(testConfig)
	if err := Load(cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want default 5s", cfg.Timeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want default INFO", cfg.LogLevel)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// TEST_HOST has no default tag.
	cfg := new(testConfig)

	err := Load(cfg)
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("err = %v, want ErrMissingRequired", err)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad_int", key: "TEST_RETRIES", value: "three"},
		{name: "bad_bool", key: "TEST_DEBUG", value: "yep"},
		{name: "bad_duration", key: "TEST_TIMEOUT", value: "5 parsecs"},
		{name: "uint_overflow", key: "TEST_PORT", value: "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_HOST", "h")
			t.Setenv(tt.key, tt.value)

			if err := Load(new(testConfig)); err == nil {
				t.Fatalf("load accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_NestedStruct(t *testing.T) {
	type inner struct {
		Name string `env:"TEST_INNER_NAME" default:"inner"`
	}
	type outer struct {
		Inner inner
		Top   string `env:"TEST_TOP" default:"top"`
	}

	cfg := new(outer)
	if err := Load(cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Inner.Name != "inner" || cfg.Top != "top" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_RejectsNonStructPointer(t *testing.T) {
	if err := Load(nil); err == nil {
		t.Error("accepted nil")
	}

	var s string
	if err := Load(&s); err == nil {
		t.Error("accepted pointer to non-struct")
	}

	if err := Load(testConfig{}); err == nil {
		t.Error("accepted non-pointer")
	}
}
