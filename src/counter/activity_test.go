package counter

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/chai-counter/src/model"
)

func TestExtractCount(t *testing.T) {
	for _, tc := range []struct {
		tag     string
		count   uint64
		wantErr bool
	}{
		{tag: "p2p (3)", count: 3},
		{tag: "p2p 3", count: 3},
		{tag: "p2p (12)", count: 12},
		{tag: "p2p (0)", count: 0},
		{tag: "p2p p2p (4)", count: 4},
		{tag: "p2p (123)", wantErr: true},
		{tag: "p2p (x)", wantErr: true},
		{tag: "p2p", wantErr: true},
		{tag: "p2p (3", wantErr: true},
	} {
		count, err := ExtractCount("alice", tc.tag, P2PMarker)
		if tc.wantErr {
			if _, ok := err.(*ParseError); !ok {
				t.Errorf("%q: expected ParseError, got %v", tc.tag, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %s", tc.tag, err)
			continue
		}
		if count != tc.count {
			t.Errorf("%q: expected %d, got %d", tc.tag, tc.count, count)
		}
	}
}

func TestAggregateActivityScenario(t *testing.T) {
	records := []*model.ActivityRecord{
		activity("A", 1*time.Hour, "p2p 3"),
		activity("A", 2*time.Hour, "p2p 2"),
		activity("B", 3*time.Hour, "p2p 1"),
	}
	ledger, skipped := AggregateActivity(records, 10, logger)
	if len(skipped) != 0 {
		t.Fatalf("unexpected parse errors: %v", skipped)
	}
	if d := cmp.Diff(map[string]uint64{"A": 50, "B": 10}, ledger.Amounts()); d != "" {
		t.Fatalf("unexpected ledger: %s", d)
	}
}

func TestAggregateActivityFiltersByMarker(t *testing.T) {
	records := []*model.ActivityRecord{
		activity("alice", time.Hour, "🔥 (2), p2p (3)"),
		activity("bob", time.Hour, "🔥 (5)"),
		activity("carol", time.Hour, "p2p (zero)"),
		activity("dave", time.Hour, "p2p (0)"),
		nil,
	}
	ledger, skipped := AggregateActivity(records, 10, logger)
	expected := map[string]uint64{"alice": 30, "carol": 0, "dave": 0}
	if d := cmp.Diff(expected, ledger.Amounts()); d != "" {
		t.Fatalf("unexpected ledger: %s", d)
	}
	if len(skipped) != 1 || skipped[0].Recipient != "carol" {
		t.Fatalf("expected carol's record to be skipped, got %v", skipped)
	}
}

func TestAggregateActivityIsOrderIndependent(t *testing.T) {
	var records []*model.ActivityRecord
	expected := map[string]uint64{}
	names := []string{"alice", "bob", "carol", "dave"}
	for i := 0; i < 200; i++ {
		name := names[i%len(names)]
		count := uint64(i % 7)
		records = append(records, activity(name, time.Duration(i)*time.Minute, fmt.Sprintf("p2p (%d)", count)))
		expected[name] += 7 * count
	}

	// shuffle in a random but reproducible way
	rng := rand.New(rand.NewSource(12345678))
	for i := 0; i < 5; i++ {
		rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
		ledger, _ := AggregateActivity(records, 7, logger)
		if d := cmp.Diff(expected, ledger.Amounts()); d != "" {
			t.Fatalf("shuffle %d changed the ledger: %s", i, d)
		}
	}
}

func TestAggregateActivityOrdersByTimestamp(t *testing.T) {
	records := []*model.ActivityRecord{
		activity("late", 3*time.Hour, "p2p (1)"),
		activity("early", 1*time.Hour, "p2p (1)"),
		activity("middle", 2*time.Hour, "p2p (1)"),
	}
	ledger, _ := AggregateActivity(records, 1, logger)
	var order []string
	for _, e := range ledger.Entries() {
		order = append(order, e.Recipient)
	}
	if d := cmp.Diff([]string{"early", "middle", "late"}, order); d != "" {
		t.Fatal(d)
	}
}
