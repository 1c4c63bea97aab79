package stamps

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/chain"
	"github.com/stampchain-io/vault-plugin-stamps/cip33"
	"github.com/stampchain-io/vault-plugin-stamps/frame"
	"github.com/stampchain-io/vault-plugin-stamps/multisig"
	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/src20"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

// stampsBackend defines the backend for the stamps secrets engine
type stampsBackend struct {
	*framework.Backend
	lock     sync.RWMutex
	provider *chain.Provider

	// txCache outlives provider resets; transactions never change.
	txCache *chain.MemoryCache

	// newBackend is replaced in tests.
	newBackend func(cfg chain.BackendConfig) (chain.Backend, error)
}

// Factory creates a new backend instance
func Factory(ctx context.Context, conf *logical.BackendConfig) (logical.Backend, error) {
	b := backend()
	if err := b.Setup(ctx, conf); err != nil {
		return nil, err
	}
	return b, nil
}

func backend() *stampsBackend {
	b := &stampsBackend{
		txCache:    chain.NewMemoryCache(0, 0),
		newBackend: chain.NewBackend,
	}

	b.Backend = &framework.Backend{
		Help: strings.TrimSpace(backendHelp),
		PathsSpecial: &logical.Paths{
			SealWrapStorage: []string{
				"config",
			},
		},
		Paths: framework.PathAppend(
			pathConfig(b),
			pathSRC20(b),
			pathStamp(b),
			pathEstimate(b),
			pathCIP33(b),
			pathUTXOs(b),
			pathFees(b),
			pathPSBTQR(b),
		),
		Secrets:     []*framework.Secret{},
		BackendType: logical.TypeLogical,
		Invalidate:  b.invalidate,
		Clean:       b.cleanup,
	}

	return b
}

// invalidate resets the provider when configuration changes
func (b *stampsBackend) invalidate(ctx context.Context, key string) {
	if key == configStoragePath {
		b.reset()
	}
}

func (b *stampsBackend) cleanup(ctx context.Context) {
	b.reset()
}

// reset closes the cached provider
func (b *stampsBackend) reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.provider != nil {
		b.Logger().Debug("closing provider")
		b.provider.Close()
		b.provider = nil
	}
}

// getProvider returns the chain provider, creating one if necessary
func (b *stampsBackend) getProvider(ctx context.Context, s logical.Storage) (*chain.Provider, error) {
	b.lock.RLock()
	if b.provider != nil {
		b.lock.RUnlock()
		return b.provider, nil
	}
	b.lock.RUnlock()

	b.lock.Lock()
	defer b.lock.Unlock()

	// Double-check after acquiring write lock
	if b.provider != nil {
		return b.provider, nil
	}

	config, err := getConfig(ctx, s)
	if err != nil {
		return nil, err
	}

	retry := config.retryPolicy()
	retry.Logger = b.Logger().Named("retry")
	retry.OnRetry = func(op string, attempt int, err error) {
		metrics.IncrCounterWithLabels([]string{"stamps", "provider", "retry"}, 1,
			[]metrics.Label{{Name: "op", Value: op}, {Name: "backend", Value: config.Backend}})
	}

	backend, err := b.newBackend(chain.BackendConfig{
		Kind:        config.Backend,
		Network:     config.Network,
		ElectrumURL: config.ElectrumURL,
		MempoolURL:  config.MempoolURL,
		RPCHost:     config.RPCHost,
		RPCUser:     config.RPCUser,
		RPCPass:     config.RPCPass,
		Retry:       retry,
		Logger:      b.Logger(),
	})
	if err != nil {
		return nil, err
	}

	provider, err := chain.NewProvider(backend, chain.Config{
		Network:          config.Network,
		MinConfirmations: config.MinConfirmations,
		Retry:            retry,
		Cache:            b.txCache,
		Logger:           b.Logger().Named("provider"),
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	b.Logger().Info("provider ready", "backend", config.Backend, "network", config.Network)
	b.provider = provider
	return b.provider, nil
}

// newAssembler builds an assembler for the stored configuration.
func (b *stampsBackend) newAssembler(config *stampsConfig, lookup txbuilder.TxLookup) (*txbuilder.Assembler, error) {
	var burnKey []byte
	if config.BurnKey != "" {
		var err error
		if burnKey, err = multisig.ParseBurnKey(config.BurnKey); err != nil {
			return nil, err
		}
	}
	return txbuilder.NewAssembler(lookup, txbuilder.Config{
		Network:             config.Network,
		BurnKey:             burnKey,
		MaxKeyAttempts:      config.MaxKeyAttempts,
		MaxSelectIterations: config.MaxSelectIterations,
		Logger:              b.Logger().Named("assembler"),
	})
}

// measureBuild records a finished PSBT build.
func measureBuild(kind string, start time.Time) {
	labels := []metrics.Label{{Name: "kind", Value: kind}}
	metrics.IncrCounterWithLabels([]string{"stamps", "psbt", "built"}, 1, labels)
	metrics.MeasureSinceWithLabels([]string{"stamps", "psbt", "build_time"}, start, labels)
}

// isUserError reports whether err was caused by the request rather than by
// the engine or its data source.
func isUserError(err error) bool {
	for _, target := range []error{
		txbuilder.ErrInsufficientFunds,
		txbuilder.ErrInvalidFeeRate,
		txbuilder.ErrInvalidOutput,
		txbuilder.ErrEmptyPayload,
		txbuilder.ErrUnknownEncoding,
		txbuilder.ErrMissingPublicKey,
		txbuilder.ErrSelectionNotConverged,
		frame.ErrPayloadTooLarge,
		cip33.ErrPayloadTooLarge,
		cip33.ErrInvalidEncodingInput,
		cip33.ErrUnknownNetwork,
		network.ErrUnknownNetwork,
		multisig.ErrInvalidBurnKey,
		src20.ErrInvalidParams,
		src20.ErrNotSRC20,
		chain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorResponse turns a build error into a Vault response. User errors
// become error responses, everything else is returned as an internal error.
func errorResponse(err error) (*logical.Response, error) {
	if isUserError(err) {
		return logical.ErrorResponse(err.Error()), nil
	}
	return nil, err
}

const backendHelp = `
The stamps secrets engine builds unsigned Bitcoin Stamps transactions.

Payloads are either SRC-20 token messages, embedded in bare 1-of-3 multisig
outputs, or files, embedded in P2WSH outputs using the CIP33 address
encoding. The engine selects coins from the source address, pays the
configured service fee, and returns the transaction as a PSBT for an
external signer. Nothing is signed or broadcast.

Configure the engine with a data source (Electrum, a mempool.space style
API, or bitcoind) and choose between mainnet, testnet4, signet or regtest.

Endpoints:
  stamps/config                   - Engine configuration
  stamps/src20/deploy             - Build an SRC-20 deploy transaction
  stamps/src20/mint               - Build an SRC-20 mint transaction
  stamps/src20/transfer           - Build an SRC-20 transfer transaction
  stamps/stamp                    - Build a CIP33 file stamp transaction
  stamps/estimate                 - Estimate fee and change without building
  stamps/cip33/encode             - Encode data as CIP33 addresses
  stamps/cip33/decode             - Decode CIP33 addresses
  stamps/utxos/:address           - List spendable UTXOs of an address
  stamps/fees                     - Current fee rate estimate
  stamps/psbt/qr                  - QR code for a PSBT
`
