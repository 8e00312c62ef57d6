package counter

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	hexAddressPrefix = "0x"
	ensNameSuffix    = ".eth"
)

type resolution struct {
	address string
	err     error
}

// IdentityResolver turns a claimed wallet string into a payable address.
// Results are cached for the life of the resolver, which is one run.
type IdentityResolver struct {
	names  NameResolver
	policy RetryPolicy
	logger *zap.Logger
	cache  map[string]resolution
}

func NewIdentityResolver(names NameResolver, policy RetryPolicy, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{
		names:  names,
		policy: policy,
		logger: logger.Named("resolver"),
		cache:  map[string]resolution{},
	}
}

func IsHexAddressShape(identifier string) bool {
	return strings.HasPrefix(identifier, hexAddressPrefix)
}

func IsNameShape(identifier string) bool {
	return strings.HasSuffix(strings.ToLower(identifier), ensNameSuffix)
}

// Resolve only checks the 0x prefix for hex addresses, nothing validates the
// checksum or length of an address passed through unchanged.
func (r *IdentityResolver) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if IsHexAddressShape(identifier) {
		return identifier, nil
	}
	if cached, ok := r.cache[identifier]; ok {
		return cached.address, cached.err
	}
	address, err := r.resolve(ctx, identifier)
	if err != nil {
		r.logger.Warn(err.Error(), zap.String("identifier", identifier), zap.String("reason", ErrorCode(err)))
	}
	r.cache[identifier] = resolution{address: address, err: err}
	return address, err
}

func (r *IdentityResolver) resolve(ctx context.Context, identifier string) (string, error) {
	if !IsNameShape(identifier) {
		return "", &ResolutionError{Identifier: identifier, Kind: ResolutionInvalidFormat, Err: ErrInvalidFormat}
	}
	if r.names == nil {
		return "", &ResolutionError{Identifier: identifier, Kind: ResolutionUnavailable, Err: ErrUnavailable}
	}

	var address string
	err := r.policy.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		address, err = r.names.Address(ctx, identifier)
		return err
	})
	switch {
	case errors.Is(err, ErrNameNotFound):
		return "", &ResolutionError{Identifier: identifier, Kind: ResolutionNameNotFound, Err: err}
	case err != nil:
		return "", &ResolutionError{Identifier: identifier, Kind: ResolutionUnavailable, Err: err}
	case address == "":
		return "", &ResolutionError{Identifier: identifier, Kind: ResolutionNameNotFound, Err: ErrNameNotFound}
	}
	return address, nil
}
