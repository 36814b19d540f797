package pipeline

import "fmt"

// Ledger is the append-only round history of one session. Rounds are
// keyed by contiguous numbers starting at 1 and are never mutated or
// deleted once appended. The owning session's lock serializes access.
type Ledger struct {
	rounds []Round
}

// Append adds the next round. The round number must continue the
// sequence exactly.
func (l *Ledger) Append(r Round) error {
	if r.Number != len(l.rounds)+1 {
		return fmt.Errorf("ledger append: round %d does not follow %d", r.Number, len(l.rounds))
	}
	l.rounds = append(l.rounds, r)
	return nil
}

// Get returns the round with the given number.
func (l *Ledger) Get(number int) (Round, bool) {
	if number < 1 || number > len(l.rounds) {
		return Round{}, false
	}
	return l.rounds[number-1], true
}

// List returns all rounds in order, as a copy.
func (l *Ledger) List() []Round {
	out := make([]Round, len(l.rounds))
	copy(out, l.rounds)
	return out
}

// Len returns the number of completed rounds.
func (l *Ledger) Len() int {
	return len(l.rounds)
}
