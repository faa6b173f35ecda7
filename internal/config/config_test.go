package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setRequired sets the variables Load refuses to run without.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TABMARKS_BASE_URL", "https://marks.example.com")
	t.Setenv("TABMARKS_OIDC_ISSUER", "https://accounts.example.com")
	t.Setenv("TABMARKS_OIDC_CLIENT_ID", "client-id")
	t.Setenv("TABMARKS_OIDC_CLIENT_SECRET", "client-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.FallbackDelay != 500*time.Millisecond {
		t.Errorf("FallbackDelay = %v, want 500ms", cfg.FallbackDelay)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if len(cfg.OIDCScopes) != 3 || cfg.OIDCScopes[0] != "openid" {
		t.Errorf("OIDCScopes = %v, want openid,email,profile", cfg.OIDCScopes)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
}

func TestLoadPanicsWithoutRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("TABMARKS_OIDC_CLIENT_SECRET", "")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Load() should have panicked without the client secret")
		}
	}()
	Load()
}

func TestRedirectURL(t *testing.T) {
	setRequired(t)
	t.Setenv("TABMARKS_BASE_URL", "https://marks.example.com/")

	cfg := Load()
	want := "https://marks.example.com/auth/callback"
	if got := cfg.RedirectURL(); got != want {
		t.Errorf("RedirectURL() = %q, want %q", got, want)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "tabmarks.yaml")
	content := `
listen_addr: ":9090"
log_level: debug
redis:
  addr: "redis.internal:6379"
  db: 3
oidc:
  scopes: ["openid", "email"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("TABMARKS_CONFIG_FILE", path)
	// Quiet: debug level would dump the config.
	t.Setenv("TABMARKS_LOG_LEVEL", "info")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090 from file", cfg.ListenAddr)
	}
	if cfg.RedisAddr != "redis.internal:6379" {
		t.Errorf("RedisAddr = %q, want redis.internal:6379 from file", cfg.RedisAddr)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3 from file", cfg.RedisDB)
	}
	if len(cfg.OIDCScopes) != 2 {
		t.Errorf("OIDCScopes = %v, want the file's two scopes", cfg.OIDCScopes)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "tabmarks.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("TABMARKS_CONFIG_FILE", path)
	t.Setenv("TABMARKS_LISTEN_ADDR", ":7070")

	cfg := Load()
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, env must beat file", cfg.ListenAddr)
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "empty", input: "", want: 0},
		{name: "single", input: "https://a.example", want: 1},
		{name: "multiple with spaces", input: "https://a.example, https://b.example", want: 2},
		{name: "quoted", input: `"https://a.example", 'https://b.example'`, want: 2},
		{name: "trailing comma", input: "https://a.example,", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAndTrim(tt.input)
			if len(got) != tt.want {
				t.Errorf("splitAndTrim(%q) = %v, want %d parts", tt.input, got, tt.want)
			}
		})
	}
}

func TestGetenvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := getenvInt("TEST_INT", 7); got != 42 {
		t.Errorf("getenvInt = %d, want 42", got)
	}
	if got := getenvInt("TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("getenvInt = %d, want default 7", got)
	}
	t.Setenv("TEST_INT_BAD", "nope")
	if got := getenvInt("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("getenvInt = %d, want default on parse failure", got)
	}
}
