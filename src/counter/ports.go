package counter

import (
	"context"

	"github.com/onemorebsmith/chai-counter/src/model"
)

// IdentityStore maps recipient handles to the wallet string they registered.
type IdentityStore interface {
	WalletAddresses(ctx context.Context) (map[string]string, error)
}

type CompletionStore interface {
	Completions(ctx context.Context) ([]*model.CompletionRecord, error)
	MarkCompleted(ctx context.Context, recordID string) error
}

// NameResolver looks up human readable names. Implementations wrap
// ErrNameNotFound when the name has no address.
type NameResolver interface {
	Address(ctx context.Context, name string) (string, error)
}

type ActivitySource interface {
	ActivityRecords(ctx context.Context) ([]*model.ActivityRecord, error)
}

type OutputWriter interface {
	WriteDistribution(name string, entries []model.DistributionEntry) error
	WriteAudit(period string, rule model.Rule, entries []model.AuditEntry) error
}
