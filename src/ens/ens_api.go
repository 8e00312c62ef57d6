package ens

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/onemorebsmith/chai-counter/src/counter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/time/rate"
)

// mainnet ENS registry
const RegistryAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

const registryABI = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
const resolverABI = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// ContractCaller is the slice of ethclient.Client used for lookups.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type EnsApi struct {
	caller      ContractCaller
	registry    common.Address
	registryABI abi.ABI
	resolverABI abi.ABI
	limiter     *rate.Limiter
	logger      *zap.Logger
	cleanup     func()
}

func NewEnsApi(caller ContractCaller, lookupsPerSecond float64, logger *zap.Logger) (*EnsApi, error) {
	reg, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing registry abi")
	}
	res, err := abi.JSON(strings.NewReader(resolverABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing resolver abi")
	}
	limit := rate.Inf
	if lookupsPerSecond > 0 {
		limit = rate.Limit(lookupsPerSecond)
	}
	return &EnsApi{
		caller:      caller,
		registry:    common.HexToAddress(RegistryAddress),
		registryABI: reg,
		resolverABI: res,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger.With(zap.String("component", "ens_api")),
		cleanup:     func() {},
	}, nil
}

// Dial connects to the json-rpc endpoint and checks it answers before any
// lookups are attempted.
func Dial(ctx context.Context, endpoint string, lookupsPerSecond float64, logger *zap.Logger) (*EnsApi, error) {
	client, err := ethclient.DialContext(ctx, strings.TrimSpace(endpoint))
	if err != nil {
		return nil, errors.Wrap(err, "failed connecting to rpc endpoint")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "rpc endpoint is not responding")
	}
	api, err := NewEnsApi(client, lookupsPerSecond, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	api.cleanup = client.Close
	api.logger.Info("connected to rpc endpoint", zap.String("chain_id", chainID.String()))
	return api, nil
}

func (e *EnsApi) Close() {
	e.cleanup()
}

var nameProfile = idna.New(idna.MapForLookup(), idna.ValidateLabels(false), idna.CheckHyphens(false),
	idna.StrictDomainName(false), idna.Transitional(false))

// Normalize maps name the way ENS clients do before hashing: case folded,
// width and compatibility forms mapped, disallowed runes rejected.
func Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	out, err := nameProfile.ToUnicode(name)
	if err != nil {
		return "", errors.Wrapf(counter.ErrNameNotFound, "invalid name %q: %s", name, err)
	}
	// ToUnicode drops a leading dot
	if strings.HasPrefix(name, ".") && !strings.HasPrefix(out, ".") {
		out = "." + out
	}
	return out, nil
}

// NameHash implements the EIP-137 namehash.
func NameHash(name string) common.Hash {
	node := common.Hash{}
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label)
	}
	return node
}

// Address resolves name through its resolver contract and returns the
// checksummed address.
func (e *EnsApi) Address(ctx context.Context, name string) (string, error) {
	normalized, err := Normalize(name)
	if err != nil {
		return "", err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "name lookup rate limit")
	}
	node := NameHash(normalized)

	resolver, err := e.call(ctx, e.registry, e.registryABI, "resolver", node)
	if err != nil {
		return "", errors.Wrapf(err, "failed fetching resolver for %s", normalized)
	}
	if resolver == (common.Address{}) {
		return "", errors.Wrapf(counter.ErrNameNotFound, "no resolver set for %s", normalized)
	}
	addr, err := e.call(ctx, resolver, e.resolverABI, "addr", node)
	if err != nil {
		return "", errors.Wrapf(err, "failed fetching address for %s", normalized)
	}
	if addr == (common.Address{}) {
		return "", errors.Wrapf(counter.ErrNameNotFound, "no address set for %s", normalized)
	}
	e.logger.Debug("resolved name", zap.String("name", normalized), zap.String("address", addr.Hex()))
	return addr.Hex(), nil
}

func (e *EnsApi) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, node common.Hash) (common.Address, error) {
	data, err := parsed.Pack(method, [32]byte(node))
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "failed packing %s call", method)
	}
	out, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 { // no contract at `to`
		return common.Address{}, nil
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "failed decoding %s result", method)
	}
	if len(values) != 1 {
		return common.Address{}, errors.Errorf("unexpected %s result length %d", method, len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("unexpected %s result type %T", method, values[0])
	}
	return addr, nil
}
