package journal

import (
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndGet(t *testing.T) {
	j := openTestJournal(t)

	entry := Entry{
		Nonce:        "17054396970088651",
		Method:       "private/order",
		Instrument:   "ETH-PERP",
		SubaccountID: 5,
		Signature:    "0xabcd",
		SubmittedAt:  1705439697008,
		Status:       StatusSubmitted,
	}
	if err := j.Record(entry); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, ok, err := j.Get(entry.Nonce)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("entry not found after record")
	}
	if got != entry {
		t.Errorf("got %+v, want %+v", got, entry)
	}
}

func TestGetMissing(t *testing.T) {
	j := openTestJournal(t)
	_, ok, err := j.Get("999")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Error("found an entry that was never written")
	}
}

func TestSetVerdict(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Record(Entry{Nonce: "1", Method: "private/order", Status: StatusSubmitted}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := j.SetVerdict("1", StatusAmbiguous, "connection lost"); err != nil {
		t.Fatalf("verdict failed: %v", err)
	}

	got, _, err := j.Get("1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusAmbiguous || got.Detail != "connection lost" {
		t.Errorf("entry after verdict = %+v", got)
	}
	// Everything else survives the update.
	if got.Method != "private/order" {
		t.Errorf("method = %s, want private/order", got.Method)
	}
}

func TestSetVerdictMissing(t *testing.T) {
	j := openTestJournal(t)
	if err := j.SetVerdict("42", StatusConfirmed, ""); err == nil {
		t.Error("verdict on a missing entry should fail")
	}
}

func TestListOrderAndLimit(t *testing.T) {
	j := openTestJournal(t)

	// Time-prefixed nonces: key order is submission order.
	nonces := []string{"17054396970000001", "17054396970000002", "17054396970000003"}
	for _, n := range nonces {
		if err := j.Record(Entry{Nonce: n, Method: "private/order", Status: StatusConfirmed}); err != nil {
			t.Fatalf("record %s failed: %v", n, err)
		}
	}

	all, err := j.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list returned %d entries, want 3", len(all))
	}
	for i, e := range all {
		if e.Nonce != nonces[i] {
			t.Errorf("entry %d nonce = %s, want %s", i, e.Nonce, nonces[i])
		}
	}

	two, err := j.List(2)
	if err != nil {
		t.Fatalf("limited list failed: %v", err)
	}
	if len(two) != 2 {
		t.Errorf("limited list returned %d entries, want 2", len(two))
	}
}

func TestReopenPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := j.Record(Entry{Nonce: "7", Method: "private/transfer_erc20", Status: StatusAmbiguous}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	j, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j.Close()

	got, ok, err := j.Get("7")
	if err != nil || !ok {
		t.Fatalf("entry lost across reopen: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusAmbiguous {
		t.Errorf("status = %s, want ambiguous", got.Status)
	}
}
