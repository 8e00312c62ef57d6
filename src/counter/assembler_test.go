package counter

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/chai-counter/src/model"
)

func TestAssembleRowsCorrespond(t *testing.T) {
	ledger := model.NewLedger()
	ledger.Add("alice", 30)
	ledger.Add("bob", 0)
	ledger.Add("carol", 20)
	ledger.Add("dave", 10)
	ledger.Add("erin", 40)

	directory := map[string]string{
		"alice": walletA,
		"bob":   walletB,
		"carol": "carol.eth",
		"dave":  "dave.eth",
	}
	names := &fakeNames{addrs: map[string]string{"carol.eth": walletC}}
	resolver := NewIdentityResolver(names, testPolicy, logger)
	assembly := Assemble(context.Background(), ledger, model.DefaultTokenAddress, DirectoryResolveFunc(directory, resolver), logger)

	expectedDist := []model.DistributionEntry{
		{TokenType: "erc20", TokenAddress: model.DefaultTokenAddress, Receiver: walletA, Amount: 30},
		{TokenType: "erc20", TokenAddress: model.DefaultTokenAddress, Receiver: walletC, Amount: 20},
	}
	expectedAudit := []model.AuditEntry{
		{Receiver: "alice", Amount: 30},
		{Receiver: "carol", Amount: 20},
	}
	if d := cmp.Diff(expectedDist, assembly.Distribution); d != "" {
		t.Fatalf("unexpected distribution: %s", d)
	}
	if d := cmp.Diff(expectedAudit, assembly.Audit); d != "" {
		t.Fatalf("unexpected audit: %s", d)
	}
	if assembly.Total() != 50 {
		t.Fatalf("expected total 50, got %d", assembly.Total())
	}

	// dave's name doesn't resolve, erin never registered; bob had nothing to pay
	if len(assembly.Skipped) != 2 {
		t.Fatalf("expected 2 skipped recipients, got %v", assembly.Skipped)
	}
	if kind := resolutionKind(t, assembly.Skipped[0]); kind != ResolutionNameNotFound {
		t.Fatalf("expected name_not_found for dave, got %s", kind)
	}
	if kind := resolutionKind(t, assembly.Skipped[1]); kind != ResolutionNotRegistered {
		t.Fatalf("expected not_registered for erin, got %s", kind)
	}
	if d := cmp.Diff([]string{"carol.eth", "dave.eth"}, names.lookups); d != "" {
		t.Fatalf("zero entries must not be resolved: %s", d)
	}
}

func TestAssembleUsesKnownAddress(t *testing.T) {
	ledger := model.NewLedger()
	ledger.Touch("alice").Address = walletA
	ledger.Add("alice", 5000)

	calls := 0
	resolve := func(ctx context.Context, recipient string) (string, error) {
		calls++
		return walletB, nil
	}
	assembly := Assemble(context.Background(), ledger, model.DefaultTokenAddress, resolve, logger)
	if calls != 0 {
		t.Fatalf("expected no lookups, got %d", calls)
	}
	if len(assembly.Distribution) != 1 || assembly.Distribution[0].Receiver != walletA {
		t.Fatalf("unexpected distribution %+v", assembly.Distribution)
	}
}

func TestAssembleEmptyLedger(t *testing.T) {
	assembly := Assemble(context.Background(), model.NewLedger(), model.DefaultTokenAddress, nil, logger)
	if len(assembly.Distribution) != 0 || len(assembly.Audit) != 0 || assembly.Total() != 0 {
		t.Fatalf("expected an empty assembly, got %+v", assembly)
	}
}
