package model

import "time"

type Rule string

const (
	RuleP2P        Rule = "p2p"
	RuleCompletion Rule = "projectcompletion"
)

const (
	TokenTypeERC20 = "erc20"
	// the CHAI reward token contract
	DefaultTokenAddress = "0x4491D1c47bBdE6746F878400090ba6935A91Dab6"
)

// Ledger accumulates reward units per recipient handle. Entries are created on
// first touch and never removed; iteration follows insertion order.
type Ledger struct {
	order   []string
	entries map[string]*LedgerEntry
}

type LedgerEntry struct {
	Recipient string
	Amount    uint64
	// Address is set when the recipient was resolved while aggregating
	Address string
}

func NewLedger() *Ledger {
	return &Ledger{entries: map[string]*LedgerEntry{}}
}

// Touch makes sure recipient has an entry, returning it.
func (l *Ledger) Touch(recipient string) *LedgerEntry {
	return l.touch(recipient, recipient, "")
}

// TouchAddressed keys the entry on recipient and address, so one handle that
// claimed two wallets gets a row per wallet.
func (l *Ledger) TouchAddressed(recipient, address string) *LedgerEntry {
	return l.touch(recipient+"\x00"+address, recipient, address)
}

func (l *Ledger) touch(key, recipient, address string) *LedgerEntry {
	if e, ok := l.entries[key]; ok {
		return e
	}
	e := &LedgerEntry{Recipient: recipient, Address: address}
	l.entries[key] = e
	l.order = append(l.order, key)
	return e
}

func (l *Ledger) Add(recipient string, amount uint64) {
	l.Touch(recipient).Amount += amount
}

func (l *Ledger) Len() int {
	return len(l.order)
}

// Entries returns a copy of every entry in insertion order.
func (l *Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, *l.entries[k])
	}
	return out
}

// Amounts flattens the ledger into recipient -> amount, summing addresses.
func (l *Ledger) Amounts() map[string]uint64 {
	out := make(map[string]uint64, len(l.entries))
	for _, v := range l.entries {
		out[v.Recipient] += v.Amount
	}
	return out
}

func (l *Ledger) Total() uint64 {
	total := uint64(0)
	for _, v := range l.entries {
		total += v.Amount
	}
	return total
}

type DistributionEntry struct {
	TokenType    string
	TokenAddress string
	Receiver     string
	Amount       uint64
}

type AuditEntry struct {
	Receiver string
	Amount   uint64
}

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
