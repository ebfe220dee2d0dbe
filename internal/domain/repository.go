package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable means the persistence store is gone; enforcement continues without a ledger.
	ErrStoreUnavailable = errors.New("persistence store unavailable")

	// ErrPartnerUnavailable means the partner has not published a payload yet.
	ErrPartnerUnavailable = errors.New("partner payload unavailable")

	// ErrNotFound is returned by store lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// ForegroundObserver reports the application currently in the foreground.
// Implementations: gopsutil process heuristic, HTTP push endpoint.
type ForegroundObserver interface {
	// Current returns the foreground app. ok is false when nothing is in front.
	Current(ctx context.Context) (sample Sample, ok bool, err error)
}

// Presenter renders punishments. The core never renders.
type Presenter interface {
	// Present shows a punishment with its allowed escape channels.
	Present(ctx context.Context, p ActivePunishment) error

	// Withdraw removes a resolved punishment from the surface.
	Withdraw(ctx context.Context, recordID string, outcome Outcome) error
}

// Store persists ledger data. Schema is the store's concern.
// Implementation: SQLCipher or plain SQLite via database/sql.
type Store interface {
	// SaveRecord inserts a closed record. Re-saving the same ID is a no-op.
	SaveRecord(ctx context.Context, r PunishmentRecord) error

	// ListRecords returns records resolved in [from, to). Records belong to the day they resolved in.
	ListRecords(ctx context.Context, from, to time.Time) ([]PunishmentRecord, error)

	// SaveSummary upserts a day summary.
	SaveSummary(ctx context.Context, s DaySummary) error

	// GetSummary returns the summary for a YYYY-MM-DD date.
	GetSummary(ctx context.Context, date string) (*DaySummary, error)

	// ListSummaries returns summaries for dates in [from, to] inclusive.
	ListSummaries(ctx context.Context, from, to string) ([]DaySummary, error)

	// SaveStreak persists streak bookkeeping.
	SaveStreak(ctx context.Context, s StreakState) error

	// LoadStreak returns the persisted streak, or a zero state.
	LoadStreak(ctx context.Context) (StreakState, error)

	// SaveBrotherhood persists the partner link state.
	SaveBrotherhood(ctx context.Context, s BrotherhoodState) error

	// LoadBrotherhood returns the persisted partner link state.
	LoadBrotherhood(ctx context.Context) (*BrotherhoodState, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// PartnerTransport exchanges sync payloads with the paired partner.
type PartnerTransport interface {
	// Exchange sends ours and returns the partner's latest payload.
	Exchange(ctx context.Context, mine SyncPayload) (SyncPayload, error)
}

// Timer is a cancellable scheduled task.
type Timer interface {
	// Stop cancels the task. Returns false if it already ran or was stopped.
	Stop() bool
}

// Clock abstracts time so timers are testable.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// Running returns name and create time (unix ms) of every visible process.
	Running(ctx context.Context) ([]ProcessInfo, error)
}

// ProcessInfo is a minimal process snapshot.
type ProcessInfo struct {
	PID       int
	Name      string
	CreatedAt int64 // unix ms
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// ServiceManager installs the daemon with the host service manager (launchd or systemd).
type ServiceManager interface {
	// Install writes the service definition for execPath and loads it.
	Install(execPath string) error

	// Uninstall unloads and removes the service definition.
	Uninstall() error

	// IsInstalled checks if the service definition exists.
	IsInstalled() bool

	// NeedsUpdate reports whether the installed definition differs from the one for execPath.
	NeedsUpdate(execPath string) bool
}
