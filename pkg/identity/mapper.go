// Copyright 2024-2026 Aiku AI

// Package identity implements the durable bidirectional store linking a
// canonical message identity to its native ID on each platform. The store
// must survive restarts so that replaying a backlog of polled events does
// not re-create duplicate outbound messages.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/platform"
)

// Status is the delivery state of one (canonical, platform) mapping.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusDegraded  Status = "degraded"
	StatusFailed    Status = "failed"
)

// Mapping is one row of the identity store: a canonical message's native
// identity on one platform.
type Mapping struct {
	CanonicalID string     `json:"canonical_id"`
	Platform    string     `json:"platform"`
	NativeID    string     `json:"native_id"`
	Status      Status     `json:"status"`
	AuthorName  string     `json:"author_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt time.Time  `json:"delivered_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Key layout:
//
//	map:<platform>:<native_id>        -> JSON Mapping
//	canon:<canonical_id>:<platform>   -> native_id
//	cursor:<platform>                 -> opaque poll cursor
func mapKey(platformName, nativeID string) []byte {
	return []byte("map:" + platformName + ":" + nativeID)
}

func canonKey(canonicalID, platformName string) []byte {
	return []byte("canon:" + canonicalID + ":" + platformName)
}

func cursorKey(platformName string) []byte {
	return []byte("cursor:" + platformName)
}

// Mapper is the pebble-backed identity store. Writers for the same
// canonical ID are serialized; writers for different canonical IDs proceed
// independently.
type Mapper struct {
	db    *pebble.DB
	locks keyedMutex
	log   zerolog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// Open opens (or creates) the identity store at path.
func Open(path string, log zerolog.Logger) (*Mapper, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	log.Info().Str("path", path).Msg("Identity store opened")
	return &Mapper{
		db:  db,
		log: log.With().Str("component", "identity").Logger(),
		now: time.Now,
	}, nil
}

// Close closes the underlying store.
func (m *Mapper) Close() error {
	return m.db.Close()
}

// Resolve returns the canonical ID mapped to (platform, nativeID), if any.
func (m *Mapper) Resolve(platformName, nativeID string) (string, bool, error) {
	mapping, ok, err := m.Get(platformName, nativeID)
	if err != nil || !ok {
		return "", false, err
	}
	return mapping.CanonicalID, true, nil
}

// ResolveNative returns the native ID of canonicalID on platformName.
func (m *Mapper) ResolveNative(canonicalID, platformName string) (string, bool, error) {
	v, closer, err := m.db.Get(canonKey(canonicalID, platformName))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("identity store read failed: %w", err)
	}
	nativeID := string(v)
	_ = closer.Close()
	return nativeID, true, nil
}

// Get returns the full mapping row for (platform, nativeID).
func (m *Mapper) Get(platformName, nativeID string) (Mapping, bool, error) {
	v, closer, err := m.db.Get(mapKey(platformName, nativeID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Mapping{}, false, nil
		}
		return Mapping{}, false, fmt.Errorf("identity store read failed: %w", err)
	}
	defer closer.Close()
	var mapping Mapping
	if err := json.Unmarshal(v, &mapping); err != nil {
		return Mapping{}, false, fmt.Errorf("corrupt mapping row: %w", err)
	}
	return mapping, true, nil
}

// EnsureCanonical returns the canonical ID for (platform, nativeID),
// minting a fresh one on first sighting. Idempotent: replays of the same
// native ID return the existing canonical ID. The origin-side mapping row
// is written immediately since the message already exists on its origin;
// authorName is stored on it so degraded reply annotations can name the
// original author later.
func (m *Mapper) EnsureCanonical(platformName, nativeID, authorName string) (canonicalID string, created bool, err error) {
	unlock := m.locks.lock("native:" + platformName + ":" + nativeID)
	defer unlock()

	if existing, ok, err := m.Resolve(platformName, nativeID); err != nil {
		return "", false, err
	} else if ok {
		return existing, false, nil
	}

	canonicalID = uuid.NewString()
	now := m.now().UTC()
	mapping := Mapping{
		CanonicalID: canonicalID,
		Platform:    platformName,
		NativeID:    nativeID,
		Status:      StatusDelivered,
		AuthorName:  authorName,
		CreatedAt:   now,
		DeliveredAt: now,
	}
	if err := m.writeMapping(mapping); err != nil {
		return "", false, err
	}
	return canonicalID, true, nil
}

// Record stores the mapping of canonicalID to its native ID on one
// platform. Recording the same triple twice is a no-op; claiming a
// different canonical ID for an existing (platform, nativeID) is a
// consistency error. A mapping in status failed never transitions to
// delivered; callers must go through a fresh delivery attempt instead.
func (m *Mapper) Record(canonicalID, platformName, nativeID string, status Status) error {
	unlock := m.locks.lock("canon:" + canonicalID)
	defer unlock()

	existing, ok, err := m.Get(platformName, nativeID)
	if err != nil {
		return err
	}
	if ok {
		if existing.CanonicalID != canonicalID {
			err := platform.Consistency(fmt.Errorf(
				"native id %s/%s already mapped to canonical %s, refusing to remap to %s",
				platformName, nativeID, existing.CanonicalID, canonicalID))
			m.log.Error().Err(err).Msg("Identity mapping conflict")
			return err
		}
		if existing.Status == status {
			return nil
		}
		if existing.Status == StatusFailed && (status == StatusDelivered || status == StatusDegraded) {
			return platform.Consistency(fmt.Errorf(
				"mapping %s/%s is failed and cannot become %s", platformName, nativeID, status))
		}
	}

	now := m.now().UTC()
	mapping := Mapping{
		CanonicalID: canonicalID,
		Platform:    platformName,
		NativeID:    nativeID,
		Status:      status,
		CreatedAt:   now,
		DeliveredAt: now,
	}
	if ok {
		mapping.CreatedAt = existing.CreatedAt
		mapping.DeletedAt = existing.DeletedAt
		mapping.AuthorName = existing.AuthorName
	}
	return m.writeMapping(mapping)
}

// writeMapping writes the forward and reverse rows atomically.
func (m *Mapper) writeMapping(mapping Mapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	batch := m.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(mapKey(mapping.Platform, mapping.NativeID), data, nil); err != nil {
		return err
	}
	if err := batch.Set(canonKey(mapping.CanonicalID, mapping.Platform), []byte(mapping.NativeID), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("identity store write failed: %w", err)
	}
	return nil
}

// MarkDeleted stamps deleted_at on every mapping of canonicalID. Rows are
// never removed; the audit trail is what makes replayed deletes no-ops.
// Returns the mappings that were newly marked.
func (m *Mapper) MarkDeleted(canonicalID string) ([]Mapping, error) {
	unlock := m.locks.lock("canon:" + canonicalID)
	defer unlock()

	mappings, err := m.mappingsFor(canonicalID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	var marked []Mapping
	for _, mapping := range mappings {
		if mapping.DeletedAt != nil {
			continue
		}
		mapping.DeletedAt = &now
		if err := m.writeMapping(mapping); err != nil {
			return marked, err
		}
		marked = append(marked, mapping)
	}
	return marked, nil
}

// mappingsFor collects all platform rows of one canonical message.
func (m *Mapper) mappingsFor(canonicalID string) ([]Mapping, error) {
	prefix := []byte("canon:" + canonicalID + ":")
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var mappings []Mapping
	for iter.First(); iter.Valid(); iter.Next() {
		platformName := string(iter.Key()[len(prefix):])
		nativeID := string(iter.Value())
		mapping, ok, err := m.Get(platformName, nativeID)
		if err != nil {
			return nil, err
		}
		if ok {
			mappings = append(mappings, mapping)
		}
	}
	return mappings, iter.Error()
}

// Cursor returns the persisted poll cursor for a platform, or "" when the
// platform has never been polled.
func (m *Mapper) Cursor(platformName string) (string, error) {
	v, closer, err := m.db.Get(cursorKey(platformName))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("cursor read failed: %w", err)
	}
	cursor := string(v)
	_ = closer.Close()
	return cursor, nil
}

// SetCursor persists the poll cursor so a restart resumes after the last
// handed-off event.
func (m *Mapper) SetCursor(platformName, cursor string) error {
	if err := m.db.Set(cursorKey(platformName), []byte(cursor), pebble.Sync); err != nil {
		return fmt.Errorf("cursor write failed: %w", err)
	}
	return nil
}

// keyedMutex serializes callers per key while letting distinct keys
// proceed concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
