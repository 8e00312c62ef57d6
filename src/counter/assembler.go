package counter

import (
	"context"

	"github.com/onemorebsmith/chai-counter/src/model"
	"go.uber.org/zap"
)

// ResolveFunc maps a recipient handle to a payable address.
type ResolveFunc func(ctx context.Context, recipient string) (string, error)

// DirectoryResolveFunc looks the handle up in the identity directory and
// resolves whatever wallet string the recipient registered.
func DirectoryResolveFunc(directory map[string]string, resolver *IdentityResolver) ResolveFunc {
	return func(ctx context.Context, recipient string) (string, error) {
		claimed, ok := directory[recipient]
		if !ok {
			return "", &ResolutionError{Identifier: recipient, Kind: ResolutionNotRegistered, Err: ErrNotRegistered}
		}
		return resolver.Resolve(ctx, claimed)
	}
}

// Assembly holds the two parallel outputs of a rule: Distribution[i] and
// Audit[i] always describe the same recipient.
type Assembly struct {
	Distribution []model.DistributionEntry
	Audit        []model.AuditEntry
	Skipped      []error
}

func (a *Assembly) Total() uint64 {
	total := uint64(0)
	for _, e := range a.Distribution {
		total += e.Amount
	}
	return total
}

// Assemble emits a row pair per positive ledger entry. Entries that already
// carry an address skip resolve.
func Assemble(ctx context.Context, ledger *model.Ledger, tokenAddress string, resolve ResolveFunc, logger *zap.Logger) *Assembly {
	out := &Assembly{}
	for _, entry := range ledger.Entries() {
		if entry.Amount == 0 {
			continue
		}
		address := entry.Address
		if address == "" {
			var err error
			address, err = resolve(ctx, entry.Recipient)
			if err != nil {
				logger.Warn("skipping recipient", zap.String("recipient", entry.Recipient),
					zap.Uint64("amount", entry.Amount), zap.String("reason", ErrorCode(err)), zap.Error(err))
				out.Skipped = append(out.Skipped, err)
				continue
			}
		}
		out.Distribution = append(out.Distribution, model.DistributionEntry{
			TokenType:    model.TokenTypeERC20,
			TokenAddress: tokenAddress,
			Receiver:     address,
			Amount:       entry.Amount,
		})
		out.Audit = append(out.Audit, model.AuditEntry{
			Receiver: entry.Recipient,
			Amount:   entry.Amount,
		})
	}
	return out
}
