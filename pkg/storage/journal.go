package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/tradewire/pkg/order"
)

// InFlight is a submission whose ledger transaction has not completed.
type InFlight struct {
	ID       string    `json:"id"`
	Asset    string    `json:"asset"`
	Side     string    `json:"side"`
	Quantity string    `json:"quantity"` // fixed-point integer, base 10
	Price    string    `json:"price"`
	Started  time.Time `json:"started"`
}

func NewInFlight(id string, sub order.LedgerSubmission, started time.Time) InFlight {
	return InFlight{
		ID:       id,
		Asset:    sub.Asset,
		Side:     sub.Side,
		Quantity: bigString(sub.Quantity),
		Price:    bigString(sub.Price),
		Started:  started,
	}
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// Journal records orders only while their transaction is in flight. Entries
// are removed when the worker finishes, whatever the outcome.
type Journal interface {
	Begin(rec InFlight) error
	Finish(id string) error
	// Pending lists entries left behind, e.g. by a crash or an abandoned
	// worker.
	Pending() ([]InFlight, error)
	Clear() error
	Close() error
}

// NopJournal keeps nothing.
type NopJournal struct{}

func (NopJournal) Begin(InFlight) error         { return nil }
func (NopJournal) Finish(string) error          { return nil }
func (NopJournal) Pending() ([]InFlight, error) { return nil, nil }
func (NopJournal) Clear() error                 { return nil }
func (NopJournal) Close() error                 { return nil }

var ErrJournalClosed = errors.New("journal closed")

// PebbleJournal stores in-flight entries under if:<id>. Calls after Close
// return ErrJournalClosed; abandoned workers may still finish late.
type PebbleJournal struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

func OpenPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &PebbleJournal{db: db}, nil
}

var inflightPrefix = []byte("if:")

func kInFlight(id string) []byte { return append(append([]byte(nil), inflightPrefix...), id...) }

// prefixEnd returns the first key after every key with the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (j *PebbleJournal) Begin(rec InFlight) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal in-flight entry: %w", err)
	}
	// NoSync: the journal is diagnostic, losing the tail on power loss is fine.
	if err := j.db.Set(kInFlight(rec.ID), val, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save in-flight entry: %w", err)
	}
	return nil
}

func (j *PebbleJournal) Finish(id string) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	if err := j.db.Delete(kInFlight(id), pebble.NoSync); err != nil {
		return fmt.Errorf("failed to delete in-flight entry: %w", err)
	}
	return nil
}

func (j *PebbleJournal) Pending() ([]InFlight, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrJournalClosed
	}
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: inflightPrefix,
		UpperBound: prefixEnd(inflightPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []InFlight
	for iter.First(); iter.Valid(); iter.Next() {
		var rec InFlight
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal in-flight entry %q: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

func (j *PebbleJournal) Clear() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	return j.db.DeleteRange(inflightPrefix, prefixEnd(inflightPrefix), pebble.Sync)
}

func (j *PebbleJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.db.Flush(); err != nil {
		j.db.Close()
		return err
	}
	return j.db.Close()
}

var (
	_ Journal = NopJournal{}
	_ Journal = (*PebbleJournal)(nil)
)
