// Package state is the slot store of the vaccination contract.
//
// The contract owns three slots. Every read hands out a Token carrying the slot version it
// observed; Commit re-validates all tokens and applies the staged writes atomically, or none.
package state

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ignasirv/zkVaccionation/identity"
)

var (
	ErrUninitialized = errors.New("contract state is not initialized")
	ErrStale         = errors.New("state changed since it was read")
	ErrUnknownSlot   = errors.New("unknown slot")
)

// Slot names one unit of on-chain mutable state.
type Slot uint8

const (
	SlotIssuer Slot = iota
	SlotVaccinationCount
	SlotLastVaccinationTime

	numSlots
)

var slotNames = [numSlots]string{
	SlotIssuer:              "issuer",
	SlotVaccinationCount:    "vaccinationCount",
	SlotLastVaccinationTime: "lastVaccinationTime",
}

// Slots lists every slot in layout order.
func Slots() []Slot {
	return []Slot{SlotIssuer, SlotVaccinationCount, SlotLastVaccinationTime}
}

func (s Slot) String() string {
	if s >= numSlots {
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
	return slotNames[s]
}

// ParseSlot is the inverse of Slot.String.
func ParseSlot(name string) (Slot, error) {
	for i, n := range slotNames {
		if n == name {
			return Slot(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
}

// Token is the freshness binding of one slot read.
type Token struct {
	Slot    Slot
	Version uint64
}

// Write stages a new value for one slot.
type Write struct {
	Slot   Slot
	Issuer identity.PublicKey // SlotIssuer only
	Value  uint64             // SlotVaccinationCount, SlotLastVaccinationTime
}

func SetIssuer(pk identity.PublicKey) Write {
	return Write{Slot: SlotIssuer, Issuer: pk}
}

func SetVaccinationCount(n uint64) Write {
	return Write{Slot: SlotVaccinationCount, Value: n}
}

func SetLastVaccinationTime(ts uint64) Write {
	return Write{Slot: SlotLastVaccinationTime, Value: ts}
}

// Snapshot is the committed value of every slot together with its version.
// A zero version means the slot was never written.
type Snapshot struct {
	issuer              identity.PublicKey
	vaccinationCount    uint64
	lastVaccinationTime uint64
	versions            [numSlots]uint64
}

// Initialized reports whether every slot has been written at least once.
func (s Snapshot) Initialized() bool {
	for _, v := range s.versions {
		if v == 0 {
			return false
		}
	}
	return true
}

func (s Snapshot) Issuer() (identity.PublicKey, Token) {
	return s.issuer, s.token(SlotIssuer)
}

func (s Snapshot) VaccinationCount() (uint64, Token) {
	return s.vaccinationCount, s.token(SlotVaccinationCount)
}

func (s Snapshot) LastVaccinationTime() (uint64, Token) {
	return s.lastVaccinationTime, s.token(SlotLastVaccinationTime)
}

// Version returns the version of slot.
func (s Snapshot) Version(slot Slot) uint64 {
	if slot >= numSlots {
		return 0
	}
	return s.versions[slot]
}

func (s Snapshot) token(slot Slot) Token {
	return Token{Slot: slot, Version: s.versions[slot]}
}

// Validate checks that every token still matches the snapshot.
func (s Snapshot) Validate(tokens []Token) error {
	for _, tok := range tokens {
		if tok.Slot >= numSlots {
			return fmt.Errorf("%w: %d", ErrUnknownSlot, tok.Slot)
		}
		if s.versions[tok.Slot] != tok.Version {
			return fmt.Errorf("%w: %s at version %d, read version %d",
				ErrStale, tok.Slot, s.versions[tok.Slot], tok.Version)
		}
	}
	return nil
}

// Apply returns a copy of s with writes applied and the written slots' versions bumped.
func (s Snapshot) Apply(writes []Write) (Snapshot, error) {
	next := s
	for _, w := range writes {
		switch w.Slot {
		case SlotIssuer:
			next.issuer = w.Issuer
		case SlotVaccinationCount:
			next.vaccinationCount = w.Value
		case SlotLastVaccinationTime:
			next.lastVaccinationTime = w.Value
		default:
			return Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownSlot, w.Slot)
		}
		next.versions[w.Slot]++
	}
	return next, nil
}

// Commitment is the MiMC state hash the circuits bind their private slot values to.
func (s Snapshot) Commitment() *big.Int {
	return ComputeStateHash(s.issuer, s.vaccinationCount, s.lastVaccinationTime)
}

// Store holds the committed snapshot. Only the ledger writes to it.
type Store interface {
	// Load returns the committed snapshot, or ErrUninitialized before the first commit.
	Load(ctx context.Context) (Snapshot, error)
	// Commit validates preconditions against the committed snapshot and applies writes
	// atomically. It returns the new snapshot.
	Commit(ctx context.Context, preconditions []Token, writes []Write) (Snapshot, error)
	Close() error
}
