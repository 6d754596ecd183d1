// Package store persists everything the zone needs across restarts that
// isn't simulation state: the player whitelist (TOML, exactly as the
// teacher's own server/whitelist.go persists it), and the ban ledger plus
// connection audit log (both goleveldb-backed, since those grow without
// bound over a server's lifetime and a flat file doesn't scale the way an
// LSM-tree key/value store does). The whitelist keeps the teacher's
// locking and update-then-write-with-rollback shape nearly verbatim (the
// file is rewritten in place with os.WriteFile); only the
// identity it checks against changes, from gophertunnel's login.IdentityData
// to a plain username string.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
)

// ErrWhitelistUnavailable is returned when the whitelist is not configured.
var ErrWhitelistUnavailable = errors.New("store: whitelist is not configured")

// ErrWhitelistInvalidName is returned when an invalid player name is
// provided to a whitelist operation.
var ErrWhitelistInvalidName = errors.New("store: invalid player name")

// Whitelist controls which players are allowed to join a zone. Entries are
// persisted in a TOML file.
type Whitelist struct {
	mu       sync.RWMutex
	players  map[string]string
	filePath string
	enabled  bool
}

type whitelistFile struct {
	Players []string `toml:"players"`
}

// LoadWhitelist loads the whitelist stored at path, creating an empty file
// there if none exists yet.
func LoadWhitelist(path string) (*Whitelist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: whitelist path must not be empty")
	}
	w := &Whitelist{players: make(map[string]string), filePath: path}
	if err := w.reloadFromDisk(); err != nil {
		return nil, err
	}
	return w, nil
}

// Enabled reports whether the whitelist is currently enforced.
func (w *Whitelist) Enabled() bool {
	if w == nil {
		return false
	}
	return w.enabled
}

// SetEnabled updates whether the whitelist is enforced.
func (w *Whitelist) SetEnabled(enabled bool) {
	if w == nil {
		return
	}
	w.enabled = enabled
}

// Allowed reports whether username may connect. A disabled whitelist
// allows everyone.
func (w *Whitelist) Allowed(username string) bool {
	if w == nil || !w.enabled {
		return true
	}
	name := strings.TrimSpace(username)
	if name == "" {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.players[normalizeName(name)]
	return ok
}

// Add inserts name into the whitelist, reporting whether it was newly
// added.
func (w *Whitelist) Add(name string) (bool, error) {
	if w == nil {
		return false, ErrWhitelistUnavailable
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false, ErrWhitelistInvalidName
	}
	key := normalizeName(trimmed)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.players[key]; exists {
		return false, nil
	}
	w.players[key] = trimmed
	if err := w.writeLocked(); err != nil {
		delete(w.players, key)
		return false, err
	}
	return true, nil
}

// Remove deletes name from the whitelist, reporting whether it was present.
func (w *Whitelist) Remove(name string) (bool, error) {
	if w == nil {
		return false, ErrWhitelistUnavailable
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false, ErrWhitelistInvalidName
	}
	key := normalizeName(trimmed)

	w.mu.Lock()
	defer w.mu.Unlock()
	original, exists := w.players[key]
	if !exists {
		return false, nil
	}
	delete(w.players, key)
	if err := w.writeLocked(); err != nil {
		w.players[key] = original
		return false, err
	}
	return true, nil
}

// Players returns every whitelisted name, case-insensitively sorted.
func (w *Whitelist) Players() []string {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.players))
	for _, name := range w.players {
		names = append(names, name)
	}
	sortNames(names)
	return names
}

func (w *Whitelist) reloadFromDisk() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloadLocked()
}

func (w *Whitelist) reloadLocked() error {
	data := whitelistFile{}
	contents, err := os.ReadFile(w.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.players = make(map[string]string)
			return w.writeLocked()
		}
		return fmt.Errorf("store: read whitelist: %w", err)
	}
	if len(contents) != 0 {
		if err := toml.Unmarshal(contents, &data); err != nil {
			return fmt.Errorf("store: decode whitelist: %w", err)
		}
	}
	w.players = make(map[string]string, len(data.Players))
	for _, name := range data.Players {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		w.players[normalizeName(trimmed)] = trimmed
	}
	return nil
}

func (w *Whitelist) writeLocked() error {
	dir := filepath.Dir(w.filePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("store: create whitelist directory: %w", err)
		}
	}
	names := make([]string, 0, len(w.players))
	for _, name := range w.players {
		names = append(names, name)
	}
	sortNames(names)
	encoded, err := toml.Marshal(whitelistFile{Players: names})
	if err != nil {
		return fmt.Errorf("store: encode whitelist: %w", err)
	}
	if err := os.WriteFile(w.filePath, encoded, 0644); err != nil {
		return fmt.Errorf("store: write whitelist: %w", err)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(name)
}

func sortNames(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		lowerA, lowerB := strings.ToLower(a), strings.ToLower(b)
		if lowerA == lowerB {
			return strings.Compare(a, b)
		}
		return strings.Compare(lowerA, lowerB)
	})
}
