// Package account loads the account roster and resolves each account's
// stored access code.
package account

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Account is one roster entry. TargetServer is empty or "Default" when the
// account has no server preference.
type Account struct {
	Name          string `toml:"name"`
	TargetServer  string `toml:"target_server"`
	Code          string `toml:"code"`
	EncryptedCode string `toml:"encrypted_code"`
}

// Roster is the set of accounts the bot can drive.
type Roster struct {
	Accounts []Account `toml:"accounts"`
}

// LoadRoster reads a TOML roster file.
func LoadRoster(path string) (*Roster, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("account: roster path must not be empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("account: stat roster %q: %w", path, err)
	}

	var roster Roster
	if _, err := toml.DecodeFile(path, &roster); err != nil {
		return nil, fmt.Errorf("account: decode roster %q: %w", path, err)
	}

	seen := make(map[string]struct{}, len(roster.Accounts))
	for i, acct := range roster.Accounts {
		name := strings.TrimSpace(acct.Name)
		if name == "" {
			return nil, fmt.Errorf("account: roster entry %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("account: duplicate roster entry %q", name)
		}
		seen[name] = struct{}{}
		roster.Accounts[i].Name = name
	}
	return &roster, nil
}

// Find returns the roster entry with the given name.
func (r *Roster) Find(name string) (Account, bool) {
	if r == nil {
		return Account{}, false
	}
	name = strings.TrimSpace(name)
	for _, acct := range r.Accounts {
		if acct.Name == name {
			return acct, true
		}
	}
	return Account{}, false
}

// HasPreferredServer reports whether the account names a non-default server.
func (a Account) HasPreferredServer() bool {
	target := strings.TrimSpace(a.TargetServer)
	return target != "" && target != "Default"
}
