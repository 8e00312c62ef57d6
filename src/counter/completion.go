package counter

import (
	"context"

	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PendingCompletion is a record that earned a reward but whose done flag has
// not been written back yet.
type PendingCompletion struct {
	RecordID  string
	Recipient string
	Address   string
}

type CompletionResult struct {
	Pending []PendingCompletion
	// Ignored counts records already done or outside the window
	Ignored int
	Skipped []error
}

// AggregateCompletions picks every not-done record created inside window whose
// wallet resolves. Nothing is written to the store; see MarkCompletions.
func AggregateCompletions(ctx context.Context, records []*model.CompletionRecord, window model.Window,
	resolver *IdentityResolver, logger *zap.Logger) *CompletionResult {
	result := &CompletionResult{}
	seen := map[string]struct{}{}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if rec.Flag != model.CompletionFlagNotDone || !window.Contains(rec.CreatedAt) {
			result.Ignored++
			continue
		}
		if _, dupe := seen[rec.RecordID]; dupe {
			result.Ignored++
			continue
		}
		seen[rec.RecordID] = struct{}{}

		address, err := resolver.Resolve(ctx, rec.Wallet)
		if err != nil {
			logger.Warn("skipping completion, wallet did not resolve", zap.String("record_id", rec.RecordID),
				zap.String("recipient", rec.Recipient), zap.String("wallet", rec.Wallet), zap.Error(err))
			result.Skipped = append(result.Skipped, err)
			continue
		}
		result.Pending = append(result.Pending, PendingCompletion{
			RecordID:  rec.RecordID,
			Recipient: rec.Recipient,
			Address:   address,
		})
	}
	return result
}

// CompletionLedger credits reward per pending record, one entry per recipient
// and address so every record is paid to the wallet it named.
func CompletionLedger(pending []PendingCompletion, reward uint64) *model.Ledger {
	ledger := model.NewLedger()
	for _, p := range pending {
		ledger.TouchAddressed(p.Recipient, p.Address).Amount += reward
	}
	return ledger
}

func isRetryableWriteBack(err error) bool {
	return !errors.Is(err, ErrAlreadyCompleted)
}

// MarkCompletions writes the done flag of each pending record. Records that
// could not be marked come back as failures and must not be paid.
func MarkCompletions(ctx context.Context, pending []PendingCompletion, store CompletionStore,
	policy RetryPolicy, logger *zap.Logger) ([]PendingCompletion, []*WriteBackError) {
	var marked []PendingCompletion
	var failed []*WriteBackError
	for _, p := range pending {
		err := policy.Do(ctx, logger, "mark completion done", isRetryableWriteBack, func(ctx context.Context) error {
			return store.MarkCompleted(ctx, p.RecordID)
		})
		if err != nil {
			wbErr := &WriteBackError{RecordID: p.RecordID, Err: err}
			logger.Error("completion left unmarked, reward withheld", zap.String("record_id", p.RecordID),
				zap.String("recipient", p.Recipient), zap.Error(wbErr))
			failed = append(failed, wbErr)
			continue
		}
		marked = append(marked, p)
	}
	return marked, failed
}
