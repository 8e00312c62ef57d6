package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/chai-counter/src/counter"
	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
)

// requires the docker postgres, enable with CHAI_TEST_POSTGRES=1
func testStore(t *testing.T) *Store {
	if os.Getenv("CHAI_TEST_POSTGRES") == "" {
		t.Skip("CHAI_TEST_POSTGRES not set")
	}
	store := NewDockerStore()
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	store.DoExecOrDie(ctx, "DELETE FROM project_completions")
	store.DoExecOrDie(ctx, "DELETE FROM chai_identities")
	return store
}

func TestIdentities(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	for handle, wallet := range map[string]string{"alice#0001": "alice.eth", "bob#0002": "0xabc"} {
		if err := store.PutIdentity(ctx, handle, wallet); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.PutIdentity(ctx, "alice#0001", "0xdef"); err != nil {
		t.Fatal(err)
	}
	wallets, err := store.WalletAddresses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(map[string]string{"alice#0001": "0xdef", "bob#0002": "0xabc"}, wallets); d != "" {
		t.Fatal(d)
	}
}

func TestCompletionsAreMarkedOnce(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	created := time.Date(2022, 10, 5, 12, 0, 0, 0, time.UTC)
	for _, rec := range []*model.CompletionRecord{
		{RecordID: "r1", Recipient: "alice#0001", Wallet: "alice.eth", Flag: model.CompletionFlagNotDone, CreatedAt: created},
		{RecordID: "r2", Recipient: "bob#0002", Wallet: "0xabc", Flag: model.CompletionFlagDone, CreatedAt: created},
	} {
		if err := store.PutCompletion(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := store.Completions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].RecordID != "r1" || !pending[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected pending completions %+v", pending)
	}
	if err := store.MarkCompleted(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkCompleted(ctx, "r1"); !errors.Is(err, counter.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on second mark, got %v", err)
	}
	pending, err = store.Completions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending completions, got %d", len(pending))
	}
}
