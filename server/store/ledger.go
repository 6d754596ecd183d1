package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/util"
)

// banRecord is the persisted shape of one ban entry.
type banRecord struct {
	Reason    string    `json:"reason"`
	BannedAt  time.Time `json:"banned_at"`
	ExpiresAt time.Time `json:"expires_at"` // zero value means permanent
}

// Ledger persists ban entries and a connection audit trail in an embedded
// goleveldb database, the same storage engine (via the teacher's
// df-mc/goleveldb fork) the teacher uses for its own world save data.
// Two key prefixes share one database: "ban:" for ban records, keyed by
// address, and "audit:" for append-only connection events, keyed by a
// big-endian timestamp so an iterator over the prefix naturally yields
// entries in chronological order.
type Ledger struct {
	db *leveldb.DB
}

// OpenLedger opens (creating if necessary) the goleveldb database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func banKey(address string) []byte {
	return append([]byte("ban:"), address...)
}

// Ban records address as banned for reason, until expiresAt (the zero
// time.Time means permanent).
func (l *Ledger) Ban(address, reason string, expiresAt time.Time) error {
	rec := banRecord{Reason: reason, BannedAt: time.Now(), ExpiresAt: expiresAt}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode ban record: %w", err)
	}
	return l.db.Put(banKey(address), data, nil)
}

// Unban removes any ban recorded against address.
func (l *Ledger) Unban(address string) error {
	return l.db.Delete(banKey(address), nil)
}

// Banned implements network.BanChecker: it reports whether address is
// currently under an unexpired ban, silently clearing a record whose
// ExpiresAt has passed.
func (l *Ledger) Banned(address string) bool {
	data, err := l.db.Get(banKey(address), nil)
	if err != nil {
		return false // includes leveldb.ErrNotFound: not banned
	}
	var rec banRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		_ = l.Unban(address)
		return false
	}
	return true
}

// BanReason returns the recorded reason for address's ban, if any.
func (l *Ledger) BanReason(address string) (string, bool) {
	data, err := l.db.Get(banKey(address), nil)
	if err != nil {
		return "", false
	}
	var rec banRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false
	}
	return rec.Reason, true
}

// AuditEvent is one recorded connection lifecycle event.
type AuditEvent struct {
	Time    time.Time `json:"time"`
	Address string    `json:"address"`
	Kind    string    `json:"kind"` // "connect", "disconnect", "reject", "kick"
	Detail  string    `json:"detail"`
}

func auditKey(t time.Time) []byte {
	key := make([]byte, 6+8)
	copy(key, "audit:")
	binary.BigEndian.PutUint64(key[6:], uint64(t.UnixNano()))
	return key
}

// Append records an audit event under a key ordered by its timestamp, so
// a prefix iteration yields events oldest-first.
func (l *Ledger) Append(ev AuditEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: encode audit event: %w", err)
	}
	return l.db.Put(auditKey(ev.Time), data, nil)
}

// Recent returns up to limit of the most recently appended audit events,
// newest first.
func (l *Ledger) Recent(limit int) ([]AuditEvent, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte("audit:")), nil)
	defer iter.Release()

	var all []AuditEvent
	for iter.Next() {
		var ev AuditEvent
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			continue
		}
		all = append(all, ev)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate audit log: %w", err)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
