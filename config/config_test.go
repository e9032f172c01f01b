package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `multicast:
  ip: "233.1.2.3"
  port: 34000
  interface: "eth0"
buffer_size: 65536
timeout: 1s
token_file: "/tmp/contract_master.json"
output_json: "/tmp/out/json"
output_csv: "/tmp/out/csv"
logging_level: "info"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Multicast.IP != "233.1.2.3" {
		t.Errorf("unexpected multicast ip: %s", cfg.Multicast.IP)
	}
	if cfg.Multicast.Port != 34000 {
		t.Errorf("unexpected multicast port: %d", cfg.Multicast.Port)
	}
	if cfg.Timeout.Seconds() != 1 {
		t.Errorf("unexpected timeout: %s", cfg.Timeout)
	}
	if cfg.TokenFile == "" {
		t.Errorf("expected token_file to be set")
	}
}

func TestLoadConfigMissingMulticastIP(t *testing.T) {
	content := `buffer_size: 1024
timeout: 1s
token_file: "/tmp/contract_master.json"
output_json: "/tmp/out/json"
output_csv: "/tmp/out/csv"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatalf("expected validation error for missing multicast.ip")
	}
}

func TestLoadConfigS3ArchiveRequiresBucketAndRegion(t *testing.T) {
	content := `multicast:
  ip: "233.1.2.3"
  port: 34000
buffer_size: 1024
timeout: 1s
token_file: "/tmp/contract_master.json"
output_json: "/tmp/out/json"
output_csv: "/tmp/out/csv"
sink:
  archive:
    s3:
      enabled: true
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatalf("expected validation error for enabled S3 archive without bucket/region")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	t.Setenv("BSEFEED_MULTICAST_IP", "239.9.9.9")
	t.Setenv("BSEFEED_MULTICAST_PORT", "40000")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Multicast.IP != "239.9.9.9" {
		t.Errorf("expected env override of multicast ip, got %s", cfg.Multicast.IP)
	}
	if cfg.Multicast.Port != 40000 {
		t.Errorf("expected env override of multicast port, got %d", cfg.Multicast.Port)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
