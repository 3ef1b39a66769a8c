package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ignasirv/zkVaccionation/identity"
)

const slotKeyPrefix = "slot:"

// slotRecord is the persisted form of one slot.
type slotRecord struct {
	Version uint64              `json:"version"`
	Value   uint64              `json:"value,omitempty"`
	Issuer  *identity.PublicKey `json:"issuer,omitempty"`
}

// LevelStore persists slots in LevelDB, one key per slot. A commit is a single batch.
type LevelStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func slotKey(s Slot) []byte {
	return []byte(slotKeyPrefix + s.String())
}

func (l *LevelStore) read() (Snapshot, error) {
	var snap Snapshot
	for _, slot := range Slots() {
		data, err := l.db.Get(slotKey(slot), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", slot, err)
		}
		var rec slotRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", slot, err)
		}
		switch slot {
		case SlotIssuer:
			if rec.Issuer != nil {
				snap.issuer = *rec.Issuer
			}
		case SlotVaccinationCount:
			snap.vaccinationCount = rec.Value
		case SlotLastVaccinationTime:
			snap.lastVaccinationTime = rec.Value
		}
		snap.versions[slot] = rec.Version
	}
	return snap, nil
}

func (l *LevelStore) Load(_ context.Context) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, err := l.read()
	if err != nil {
		return Snapshot{}, err
	}
	if !snap.Initialized() {
		return Snapshot{}, ErrUninitialized
	}
	return snap, nil
}

func (l *LevelStore) Commit(_ context.Context, preconditions []Token, writes []Write) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.read()
	if err != nil {
		return Snapshot{}, err
	}
	if err := cur.Validate(preconditions); err != nil {
		return Snapshot{}, err
	}
	next, err := cur.Apply(writes)
	if err != nil {
		return Snapshot{}, err
	}

	batch := new(leveldb.Batch)
	for _, w := range writes {
		rec := slotRecord{Version: next.versions[w.Slot]}
		switch w.Slot {
		case SlotIssuer:
			issuer := next.issuer
			rec.Issuer = &issuer
		case SlotVaccinationCount:
			rec.Value = next.vaccinationCount
		case SlotLastVaccinationTime:
			rec.Value = next.lastVaccinationTime
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode %s: %w", w.Slot, err)
		}
		batch.Put(slotKey(w.Slot), data)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return Snapshot{}, fmt.Errorf("write state batch: %w", err)
	}
	return next, nil
}

func (l *LevelStore) Close() error {
	return l.db.Close()
}
