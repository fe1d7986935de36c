package account

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoadRoster(t *testing.T) {
	path := writeRoster(t, `
[[accounts]]
name = " alpha "
target_server = "Beta"
code = "code-1"

[[accounts]]
name = "bravo"
encrypted_code = "c2VhbGVk"
`)

	roster, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	if len(roster.Accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(roster.Accounts))
	}
	if roster.Accounts[0].Name != "alpha" {
		t.Fatalf("name = %q, want trimmed alpha", roster.Accounts[0].Name)
	}
	if roster.Accounts[0].TargetServer != "Beta" {
		t.Fatalf("target server = %q", roster.Accounts[0].TargetServer)
	}
	if roster.Accounts[1].EncryptedCode != "c2VhbGVk" {
		t.Fatalf("encrypted code = %q", roster.Accounts[1].EncryptedCode)
	}
}

func TestLoadRosterErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "[[accounts]]\ncode = \"c\"\n",
			wantErr: "has no name",
		},
		{
			name:    "duplicate name",
			content: "[[accounts]]\nname = \"alpha\"\n\n[[accounts]]\nname = \"alpha\"\n",
			wantErr: "duplicate",
		},
		{
			name:    "malformed toml",
			content: "[[accounts]\nname = \"alpha\"\n",
			wantErr: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRoster(t, tt.content)
			_, err := LoadRoster(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRosterMissingFile(t *testing.T) {
	if _, err := LoadRoster(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing roster")
	}
	if _, err := LoadRoster("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRosterFind(t *testing.T) {
	roster := &Roster{Accounts: []Account{
		{Name: "alpha"},
		{Name: "bravo"},
	}}

	if acct, ok := roster.Find(" bravo "); !ok || acct.Name != "bravo" {
		t.Fatalf("find bravo = %+v, %v", acct, ok)
	}
	if _, ok := roster.Find("charlie"); ok {
		t.Fatal("find charlie should miss")
	}

	var nilRoster *Roster
	if _, ok := nilRoster.Find("alpha"); ok {
		t.Fatal("nil roster should never match")
	}
}

func TestHasPreferredServer(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{target: "", want: false},
		{target: "  ", want: false},
		{target: "Default", want: false},
		{target: "Alpha", want: true},
		{target: " all ", want: true},
	}

	for _, tt := range tests {
		acct := Account{Name: "x", TargetServer: tt.target}
		if got := acct.HasPreferredServer(); got != tt.want {
			t.Errorf("HasPreferredServer(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}
