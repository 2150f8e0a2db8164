// Package journal persists every signed action the client submits, plus the
// exchange verdict, in a local pebble database. After an ambiguous failure
// (connection lost with an order in flight) the journal is the record to
// reconcile against exchange-side history before re-submitting.
package journal

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Verdict of a submission as far as the client observed it.
const (
	StatusSubmitted = "submitted" // written before the request goes out
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusAmbiguous = "ambiguous" // connection lost, outcome unknown
)

// Entry is one submitted action. Keyed by nonce: exactly one signature
// exists per (action, nonce, expiry), so the nonce identifies the attempt.
type Entry struct {
	Nonce         string `json:"nonce"`
	Method        string `json:"method"`
	Instrument    string `json:"instrument,omitempty"`
	SubaccountID  int64  `json:"subaccount_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Signature     string `json:"signature"`
	SubmittedAt   int64  `json:"submitted_at"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
}

type Journal struct {
	db *pebble.DB
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func key(nonce string) []byte { return append([]byte("a:"), nonce...) }

// Record writes or overwrites an entry, synced before returning so the
// record survives a crash between write and submission.
func (j *Journal) Record(e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if err := j.db.Set(key(e.Nonce), val, pebble.Sync); err != nil {
		return fmt.Errorf("write journal entry %s: %w", e.Nonce, err)
	}
	return nil
}

// SetVerdict updates the status and detail of an existing entry.
func (j *Journal) SetVerdict(nonce, status, detail string) error {
	e, ok, err := j.Get(nonce)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("journal entry %s not found", nonce)
	}
	e.Status = status
	e.Detail = detail
	return j.Record(e)
}

func (j *Journal) Get(nonce string) (Entry, bool, error) {
	val, closer, err := j.db.Get(key(nonce))
	if err != nil {
		if err == pebble.ErrNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read journal entry %s: %w", nonce, err)
	}
	defer closer.Close()
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode journal entry %s: %w", nonce, err)
	}
	return e, true, nil
}

// List returns up to limit entries in key order (nonces are time-prefixed,
// so key order is roughly submission order).
func (j *Journal) List(limit int) ([]Entry, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("a:"),
		UpperBound: []byte("a;"),
	})
	if err != nil {
		return nil, fmt.Errorf("journal iterator: %w", err)
	}
	defer iter.Close()

	var out []Entry
	for iter.First(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, iter.Error()
}
