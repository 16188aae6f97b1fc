package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drivewatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	v, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := v.GetInt("server.port"); got != 8099 {
		t.Errorf("server.port = %d, want 8099", got)
	}
	if got := v.GetDuration("poll.interval"); got != 30*time.Second {
		t.Errorf("poll.interval = %v, want 30s", got)
	}
	if got := v.GetString("mqtt.ha_discovery_prefix"); got != "homeassistant" {
		t.Errorf("mqtt.ha_discovery_prefix = %q, want homeassistant", got)
	}
}

func TestParseFromFile(t *testing.T) {
	path := writeConfigFile(t, `
appliance:
  host: nas.local
  username: admin
  password: secret
  verify_tls: true
poll:
  interval: 45s
server:
  port: 9000
mqtt:
  broker_url: tcp://broker:1883
  qos: 2
`)

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg, err := Parse(v)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Appliance.Host != "nas.local" {
		t.Errorf("host = %q, want nas.local", cfg.Appliance.Host)
	}
	if !cfg.Appliance.VerifyTLS {
		t.Error("verify_tls = false, want true")
	}
	if cfg.Poll.Interval != 45*time.Second {
		t.Errorf("interval = %v, want 45s", cfg.Poll.Interval)
	}
	if got := cfg.Server.Addr(); got != "0.0.0.0:9000" {
		t.Errorf("server addr = %q, want 0.0.0.0:9000", got)
	}
	if cfg.MQTT.BrokerURL != "tcp://broker:1883" || cfg.MQTT.QoS != 2 {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}

	creds := cfg.Appliance.Credentials()
	if creds.Username != "admin" || creds.Password != "secret" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestParseRejectsIncompleteCredentials(t *testing.T) {
	path := writeConfigFile(t, `
appliance:
  host: nas.local
  username: admin
`)

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := Parse(v); err == nil {
		t.Error("Parse() accepted credentials without a password")
	}
}

func TestParseDefaultsInterval(t *testing.T) {
	path := writeConfigFile(t, `
appliance:
  host: nas.local
  username: admin
  password: secret
poll:
  interval: 0s
`)

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg, err := Parse(v)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Poll.Interval != 30*time.Second {
		t.Errorf("interval = %v, want default 30s", cfg.Poll.Interval)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("DW_APPLIANCE_PASSWORD", "from-env")

	path := writeConfigFile(t, `
appliance:
  host: nas.local
  username: admin
  password: from-file
`)

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := v.GetString("appliance.password"); got != "from-env" {
		t.Errorf("appliance.password = %q, want env override", got)
	}
}

func TestNewLogger(t *testing.T) {
	v, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	logger, err := NewLogger(v)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("logger works")
	_ = logger.Sync()

	v.Set("logging.level", "nonsense")
	if _, err := NewLogger(v); err == nil {
		t.Error("NewLogger() accepted an invalid level")
	}
}
