// Package locks serializes sessions per account across processes: two
// everbot invocations sharing a roster must never drive the same account at
// the same time. Leases expire so a crashed process cannot wedge an account.
package locks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultExpiryTimeout bounds how long a lease outlives its process. It
	// exceeds the activity timeout so a live session never loses its lease.
	DefaultExpiryTimeout = 10 * time.Minute
)

// ErrHeld indicates the account already has an active session lease.
var ErrHeld = errors.New("account session lease held")

// Lease tracks one account's active session reservation.
type Lease struct {
	Account    string    `json:"account"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ManagerConfig controls lease manager behavior.
type ManagerConfig struct {
	ExpiryTimeout time.Duration
}

// Store persists lease state.
type Store interface {
	Load(ctx context.Context) ([]Lease, error)
	Save(ctx context.Context, leases []Lease) error
}

// Manager manages account lease acquisition, conflict checks, and release.
type Manager struct {
	store         Store
	now           func() time.Time
	expiryTimeout time.Duration
}

// NewManager constructs a lease manager with configured lease expiry.
func NewManager(store Store, cfg ManagerConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.ExpiryTimeout <= 0 {
		cfg.ExpiryTimeout = DefaultExpiryTimeout
	}
	return &Manager{
		store:         store,
		now:           time.Now,
		expiryTimeout: cfg.ExpiryTimeout,
	}, nil
}

// Acquire reserves an account for this process. It returns a release closure
// on success and ErrHeld when another live lease covers the account.
func (m *Manager) Acquire(ctx context.Context, accountName string) (func() error, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return nil, errors.New("account name must not be empty")
	}

	leases, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leases: %w", err)
	}

	now := m.now().UTC()
	leases = onlyActiveLeases(leases, now)

	if holder, held := findLease(leases, accountName); held {
		return nil, fmt.Errorf("%w: account=%s pid=%d", ErrHeld, accountName, holder.PID)
	}

	leases = append(leases, Lease{
		Account:    accountName,
		PID:        os.Getpid(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.expiryTimeout),
	})

	if err := m.store.Save(ctx, leases); err != nil {
		return nil, fmt.Errorf("save leases: %w", err)
	}
	return func() error {
		return m.Release(ctx, accountName)
	}, nil
}

// Release removes an account's lease.
func (m *Manager) Release(ctx context.Context, accountName string) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return errors.New("account name must not be empty")
	}

	leases, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load leases: %w", err)
	}
	leases = withoutAccount(onlyActiveLeases(leases, m.now().UTC()), accountName)
	if err := m.store.Save(ctx, leases); err != nil {
		return fmt.Errorf("save leases: %w", err)
	}
	return nil
}

// Holder returns the active lease for an account, if any.
func (m *Manager) Holder(ctx context.Context, accountName string) (Lease, bool, error) {
	if m == nil {
		return Lease{}, false, errors.New("manager is nil")
	}
	leases, err := m.store.Load(ctx)
	if err != nil {
		return Lease{}, false, fmt.Errorf("load leases: %w", err)
	}
	leases = onlyActiveLeases(leases, m.now().UTC())
	lease, held := findLease(leases, strings.TrimSpace(accountName))
	return lease, held, nil
}

func findLease(leases []Lease, accountName string) (Lease, bool) {
	for _, lease := range leases {
		if strings.TrimSpace(lease.Account) == accountName {
			return lease, true
		}
	}
	return Lease{}, false
}

func onlyActiveLeases(leases []Lease, now time.Time) []Lease {
	active := make([]Lease, 0, len(leases))
	for _, lease := range leases {
		if lease.ExpiresAt.IsZero() || lease.ExpiresAt.After(now) {
			active = append(active, lease)
		}
	}
	return active
}

func withoutAccount(leases []Lease, accountName string) []Lease {
	filtered := make([]Lease, 0, len(leases))
	for _, lease := range leases {
		if strings.TrimSpace(lease.Account) == accountName {
			continue
		}
		filtered = append(filtered, lease)
	}
	return filtered
}

// FileStore persists leases in a JSON file shared by everbot processes.
type FileStore struct {
	path string
}

// NewFileStore constructs a file-backed lease store.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("lease file path must not be empty")
	}
	return &FileStore{path: path}, nil
}

// DefaultLeasePath returns the shared lease file under the user's home.
func DefaultLeasePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".everbot", "leases.json"), nil
}

// Load reads leases from the file. A missing file is an empty lease set.
func (s *FileStore) Load(_ context.Context) ([]Lease, error) {
	if s == nil {
		return nil, errors.New("file store is nil")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Lease{}, nil
		}
		return nil, fmt.Errorf("read lease file %q: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []Lease{}, nil
	}
	var leases []Lease
	if err := json.Unmarshal(raw, &leases); err != nil {
		return nil, fmt.Errorf("parse lease file %q: %w", s.path, err)
	}
	return leases, nil
}

// Save writes leases to the file, creating its directory as needed.
func (s *FileStore) Save(_ context.Context, leases []Lease) error {
	if s == nil {
		return errors.New("file store is nil")
	}
	payload, err := json.Marshal(leases)
	if err != nil {
		return fmt.Errorf("marshal leases: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create lease directory: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("write lease file %q: %w", s.path, err)
	}
	return nil
}
