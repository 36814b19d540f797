package pipeline

import (
	"errors"
	"testing"
)

func TestLedgerAppendKeepsContiguousNumbering(t *testing.T) {
	var l Ledger

	if err := l.Append(Round{Number: 1, Document: "a"}); err != nil {
		t.Fatalf("append round 1: %v", err)
	}
	if err := l.Append(Round{Number: 2, Document: "b"}); err != nil {
		t.Fatalf("append round 2: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 rounds, got %d", l.Len())
	}

	if err := l.Append(Round{Number: 5, Document: "c"}); err == nil {
		t.Fatal("expected error appending out-of-sequence round")
	}
	if err := l.Append(Round{Number: 2, Document: "c"}); err == nil {
		t.Fatal("expected error re-appending an existing round number")
	}
	if l.Len() != 2 {
		t.Fatalf("failed appends must not grow the ledger, got %d", l.Len())
	}
}

func TestLedgerGet(t *testing.T) {
	var l Ledger
	_ = l.Append(Round{Number: 1, Document: "a"})
	_ = l.Append(Round{Number: 2, Document: "b"})

	round, ok := l.Get(2)
	if !ok {
		t.Fatal("expected round 2")
	}
	if round.Document != "b" {
		t.Fatalf("expected document b, got %q", round.Document)
	}

	if _, ok := l.Get(0); ok {
		t.Fatal("round 0 must not exist")
	}
	if _, ok := l.Get(3); ok {
		t.Fatal("round 3 must not exist")
	}
}

func TestLedgerListReturnsCopy(t *testing.T) {
	var l Ledger
	_ = l.Append(Round{Number: 1, Document: "a"})

	rounds := l.List()
	rounds[0].Document = "mutated"

	got, _ := l.Get(1)
	if got.Document != "a" {
		t.Fatalf("ledger entry mutated through List: %q", got.Document)
	}
}

func TestLedgerAppendErrorIsNotSentinel(t *testing.T) {
	var l Ledger
	err := l.Append(Round{Number: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRoundNotFound) {
		t.Fatal("append error must not alias round lookup errors")
	}
}
