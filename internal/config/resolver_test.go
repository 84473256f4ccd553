package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	cfgPath := writeConfig(t, `db_path: /tmp/from-config.db
default_provider: cyrela
log_level: debug
server:
  listen_addr: 0.0.0.0:9000
remote:
  url: https://config.example.com
`)

	t.Setenv("OWNERSCAN_DB", "/tmp/from-env.db")
	t.Setenv("OWNERSCAN_PROVIDER", "auxiliadora")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath:  cfgPath,
		CLIDBPath:   "/tmp/from-cli.db",
		CLIProvider: "",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI || resolved.DBPath.Value != "/tmp/from-cli.db" {
		t.Fatalf("db_path = %+v, want cli", resolved.DBPath)
	}
	if resolved.DefaultProvider.Source != SourceEnv || resolved.DefaultProvider.Value != "auxiliadora" {
		t.Fatalf("default_provider = %+v, want env", resolved.DefaultProvider)
	}
	if resolved.LogLevel.Source != SourceConfig || resolved.LogLevel.Value != "debug" {
		t.Fatalf("log_level = %+v, want config", resolved.LogLevel)
	}
	if resolved.ListenAddr.Value != "0.0.0.0:9000" || resolved.ListenAddr.From != cfgPath {
		t.Fatalf("listen_addr = %+v", resolved.ListenAddr)
	}
	if resolved.RemoteURL.Value != "https://config.example.com" {
		t.Fatalf("remote_url = %+v", resolved.RemoteURL)
	}
	if resolved.PDFToText.Source != SourceDefault || resolved.PDFToText.Value != DefaultPDFToText {
		t.Fatalf("pdftotext = %+v, want default", resolved.PDFToText)
	}
}

func TestResolveConfig_MissingFileUsesDefaults(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.ListenAddr.Value != DefaultListenAddr || resolved.ListenAddr.Source != SourceDefault {
		t.Fatalf("listen_addr = %+v", resolved.ListenAddr)
	}
	if resolved.RemoteURL.Value != "" || resolved.ProvidersFile.Value != "" {
		t.Fatalf("expected unset remote/providers file, got %+v %+v", resolved.RemoteURL, resolved.ProvidersFile)
	}
	if strings.HasPrefix(resolved.DBPath.Value, "~") {
		t.Fatalf("db_path not expanded: %q", resolved.DBPath.Value)
	}
}

func TestResolveConfig_ConfigPathFromEnv(t *testing.T) {
	cfgPath := writeConfig(t, "providers_file: /etc/ownerscan/providers.yaml\n")
	t.Setenv("OWNERSCAN_CONFIG", cfgPath)

	resolved, err := ResolveConfig(ResolveOptions{})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.ConfigPath != cfgPath {
		t.Fatalf("config path = %q, want %q", resolved.ConfigPath, cfgPath)
	}
	if resolved.ProvidersFile.Value != "/etc/ownerscan/providers.yaml" {
		t.Fatalf("providers_file = %+v", resolved.ProvidersFile)
	}
}

func TestResolveConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "server: [unclosed\n")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRetentionDuration(t *testing.T) {
	r := ResolvedConfig{Retention: ResolvedValue{Value: "90m", Source: SourceEnv, From: "OWNERSCAN_RETENTION"}}
	d, err := r.RetentionDuration()
	if err != nil {
		t.Fatalf("RetentionDuration: %v", err)
	}
	if d != 90*time.Minute {
		t.Fatalf("retention = %v, want 90m", d)
	}

	for _, bad := range []string{"soon", "-1h", "0s"} {
		r.Retention.Value = bad
		if _, err := r.RetentionDuration(); err == nil {
			t.Fatalf("RetentionDuration(%q) expected error", bad)
		}
	}
}

func TestUploadRatePerSecond(t *testing.T) {
	cfgPath := writeConfig(t, "server:\n  upload_rate: \"2.5\"\nlog_file: ~/logs/ownerscan.log\n")
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	rate, err := resolved.UploadRatePerSecond()
	if err != nil || rate != 2.5 {
		t.Fatalf("UploadRatePerSecond = %v, %v; want 2.5", rate, err)
	}
	if strings.HasPrefix(resolved.LogFile.Value, "~") || !strings.HasSuffix(resolved.LogFile.Value, "ownerscan.log") {
		t.Fatalf("log_file = %q", resolved.LogFile.Value)
	}

	unset := ResolvedConfig{}
	if rate, err := unset.UploadRatePerSecond(); err != nil || rate != 0 {
		t.Fatalf("unset rate = %v, %v; want 0", rate, err)
	}
	bad := ResolvedConfig{UploadRate: ResolvedValue{Value: "fast", From: "--x"}}
	if _, err := bad.UploadRatePerSecond(); err == nil {
		t.Fatal("expected error for non-numeric rate")
	}
}
