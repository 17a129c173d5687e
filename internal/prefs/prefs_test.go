package prefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p := Load("")
	if p.Theme != DefaultTheme || !p.FollowLogs {
		t.Fatalf("Load = %+v, want defaults", p)
	}
}

func TestLoad_ReadsDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "flaps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	body := "theme = \"Slate\"\nfollow_logs = false\n"
	if err := os.WriteFile(filepath.Join(dir, "prefs.toml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := Load("")
	if p.Theme != "Slate" || p.FollowLogs {
		t.Fatalf("Load = %+v, want Slate without follow", p)
	}
}

func TestSave_RoundTripCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.toml")

	if err := Save(path, Prefs{Theme: "Kanagawa"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	p := Load(path)
	if p.Theme != "Kanagawa" || p.FollowLogs {
		t.Fatalf("Load = %+v, want Kanagawa without follow", p)
	}
}

func TestLoad_BadContentFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty-theme.toml": "theme = \"\"\n",
		"invalid.toml":     "not valid toml {{{\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if p := Load(path); p.Theme != DefaultTheme {
			t.Fatalf("Load(%s).Theme = %q, want %q", name, p.Theme, DefaultTheme)
		}
	}
}
