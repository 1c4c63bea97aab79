package stamps

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/chain"
	"github.com/stampchain-io/vault-plugin-stamps/multisig"
	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

const configStoragePath = "config"

// stampsConfig stores the secrets engine configuration
type stampsConfig struct {
	Backend          string `json:"backend"`
	ElectrumURL      string `json:"electrum_url"`
	MempoolURL       string `json:"mempool_url"`
	RPCHost          string `json:"rpc_host"`
	RPCUser          string `json:"rpc_user"`
	RPCPass          string `json:"rpc_pass"`
	Network          string `json:"network"`
	MinConfirmations int    `json:"min_confirmations"`

	ServiceFeeAddress string `json:"service_fee_address"`
	ServiceFeeSats    int64  `json:"service_fee_sats"`

	BurnKey string `json:"burn_key"`

	RetryMaxAttempts    int           `json:"retry_max_attempts"`
	RetryDelay          time.Duration `json:"retry_delay"`
	MaxKeyAttempts      int           `json:"max_key_attempts"`
	MaxSelectIterations int           `json:"max_select_iterations"`
}

// defaultConfig is used until a config is written.
func defaultConfig() *stampsConfig {
	return &stampsConfig{
		Backend:          chain.BackendElectrum,
		Network:          network.Mainnet,
		MinConfirmations: 1,
		BurnKey:          multisig.DefaultBurnKey,
		RetryMaxAttempts: chain.DefaultMaxAttempts,
		RetryDelay:       chain.DefaultRetryDelay,
	}
}

func (c *stampsConfig) retryPolicy() chain.RetryPolicy {
	return chain.RetryPolicy{MaxAttempts: c.RetryMaxAttempts, Delay: c.RetryDelay}
}

// serviceFee returns the configured service fee, or nil when disabled.
func (c *stampsConfig) serviceFee() *txbuilder.ServiceFee {
	if c.ServiceFeeAddress == "" || c.ServiceFeeSats <= 0 {
		return nil
	}
	return &txbuilder.ServiceFee{Address: c.ServiceFeeAddress, Value: c.ServiceFeeSats}
}

// validate normalizes the network name and checks every field.
func (c *stampsConfig) validate() error {
	name, err := network.Canonical(c.Network)
	if err != nil {
		return fmt.Errorf("network must be 'mainnet', 'testnet4', 'signet', or 'regtest'")
	}
	c.Network = name

	switch c.Backend {
	case chain.BackendElectrum, chain.BackendMempool:
	case chain.BackendBitcoind:
		if c.RPCHost == "" {
			return fmt.Errorf("rpc_host is required for the bitcoind backend")
		}
	default:
		return fmt.Errorf("backend must be 'electrum', 'mempool', or 'bitcoind'")
	}

	if c.MinConfirmations < 0 {
		return fmt.Errorf("min_confirmations must be >= 0")
	}

	if c.ServiceFeeSats < 0 {
		return fmt.Errorf("service_fee_sats must be >= 0")
	}
	if c.ServiceFeeAddress != "" {
		if err := txbuilder.ValidateAddress(c.ServiceFeeAddress, c.Network); err != nil {
			return fmt.Errorf("invalid service_fee_address: %w", err)
		}
	}
	if c.ServiceFeeSats > 0 && c.ServiceFeeSats < txbuilder.DustLimit {
		return fmt.Errorf("service_fee_sats must be 0 or at least %d", txbuilder.DustLimit)
	}

	if _, err := multisig.ParseBurnKey(c.BurnKey); err != nil {
		return fmt.Errorf("invalid burn_key: %w", err)
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be >= 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0")
	}
	if c.MaxKeyAttempts < 0 || c.MaxSelectIterations < 0 {
		return fmt.Errorf("max_key_attempts and max_select_iterations must be >= 0")
	}
	return nil
}

func pathConfig(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "config",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: map[string]*framework.FieldSchema{
				"backend": {
					Type:        framework.TypeString,
					Description: "Blockchain data source: electrum, mempool, or bitcoind",
					Default:     chain.BackendElectrum,
				},
				"electrum_url": {
					Type:        framework.TypeString,
					Description: "Electrum server URL. If not set, a random server from the default pool is used per connection.",
				},
				"mempool_url": {
					Type:        framework.TypeString,
					Description: "Base URL of a mempool.space style API. If not set, the public instance for the network is used.",
				},
				"rpc_host": {
					Type:        framework.TypeString,
					Description: "bitcoind JSON-RPC host:port (bitcoind backend)",
				},
				"rpc_user": {
					Type:        framework.TypeString,
					Description: "bitcoind JSON-RPC user",
				},
				"rpc_pass": {
					Type:        framework.TypeString,
					Description: "bitcoind JSON-RPC password",
					DisplayAttrs: &framework.DisplayAttributes{
						Sensitive: true,
					},
				},
				"network": {
					Type:        framework.TypeString,
					Description: "Bitcoin network: mainnet, testnet4, signet, or regtest",
					Default:     network.Mainnet,
				},
				"min_confirmations": {
					Type:        framework.TypeInt,
					Description: "Minimum confirmations required to spend UTXOs (default: 1)",
					Default:     1,
				},
				"service_fee_address": {
					Type:        framework.TypeString,
					Description: "Address receiving the service fee. Empty disables the fee.",
				},
				"service_fee_sats": {
					Type:        framework.TypeInt64,
					Description: "Service fee in satoshis added to every transaction (default: 0)",
					Default:     0,
				},
				"burn_key": {
					Type:        framework.TypeString,
					Description: "Hex compressed public key used as the third key of multisig data outputs",
					Default:     multisig.DefaultBurnKey,
				},
				"retry_max_attempts": {
					Type:        framework.TypeInt,
					Description: "Attempts per data source call, including the first (default: 3)",
					Default:     chain.DefaultMaxAttempts,
				},
				"retry_delay": {
					Type:        framework.TypeDurationSecond,
					Description: "Delay between attempts (default: 1s)",
					Default:     int(chain.DefaultRetryDelay / time.Second),
				},
				"max_key_attempts": {
					Type:        framework.TypeInt,
					Description: "Cap on the public key search per multisig key (default: 256)",
				},
				"max_select_iterations": {
					Type:        framework.TypeInt,
					Description: "Cap on coin selection passes (default: 32)",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathConfigRead,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathConfigWrite,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathConfigWrite,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
				logical.DeleteOperation: &framework.PathOperation{
					Callback: b.pathConfigDelete,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "config",
					},
				},
			},
			ExistenceCheck:  b.pathConfigExistenceCheck,
			HelpSynopsis:    pathConfigHelpSynopsis,
			HelpDescription: pathConfigHelpDescription,
		},
	}
}

func (b *stampsBackend) pathConfigExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	out, err := req.Storage.Get(ctx, configStoragePath)
	if err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return out != nil, nil
}

func (b *stampsBackend) pathConfigRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Debug("reading config")
	config, err := getStoredConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	if config == nil {
		b.Logger().Debug("no config found")
		return nil, nil
	}

	respData := map[string]interface{}{
		"backend":               config.Backend,
		"network":               config.Network,
		"min_confirmations":     config.MinConfirmations,
		"service_fee_address":   config.ServiceFeeAddress,
		"service_fee_sats":      config.ServiceFeeSats,
		"burn_key":              config.BurnKey,
		"retry_max_attempts":    config.RetryMaxAttempts,
		"retry_delay":           int64(config.RetryDelay / time.Second),
		"max_key_attempts":      config.MaxKeyAttempts,
		"max_select_iterations": config.MaxSelectIterations,
	}

	switch config.Backend {
	case chain.BackendElectrum:
		if config.ElectrumURL != "" {
			respData["electrum_url"] = config.ElectrumURL
		} else {
			// Show the server pool for this network
			respData["electrum_url"] = "(random from pool)"
			respData["electrum_pool"] = chain.ElectrumServers(config.Network)
		}
	case chain.BackendMempool:
		respData["mempool_url"] = config.MempoolURL
	case chain.BackendBitcoind:
		// The password is write only.
		respData["rpc_host"] = config.RPCHost
		respData["rpc_user"] = config.RPCUser
	}

	return &logical.Response{Data: respData}, nil
}

func (b *stampsBackend) pathConfigWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Debug("writing config", "operation", req.Operation)
	config, err := getStoredConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	createOperation := req.Operation == logical.CreateOperation

	if config == nil {
		if !createOperation {
			return nil, fmt.Errorf("config not found during update operation")
		}
		b.Logger().Debug("creating new config")
		config = defaultConfig()
	}

	for field, dst := range map[string]*string{
		"backend":             &config.Backend,
		"electrum_url":        &config.ElectrumURL,
		"mempool_url":         &config.MempoolURL,
		"rpc_host":            &config.RPCHost,
		"rpc_user":            &config.RPCUser,
		"rpc_pass":            &config.RPCPass,
		"network":             &config.Network,
		"service_fee_address": &config.ServiceFeeAddress,
		"burn_key":            &config.BurnKey,
	} {
		if v, ok := data.GetOk(field); ok {
			*dst = v.(string)
		}
	}

	for field, dst := range map[string]*int{
		"min_confirmations":     &config.MinConfirmations,
		"retry_max_attempts":    &config.RetryMaxAttempts,
		"max_key_attempts":      &config.MaxKeyAttempts,
		"max_select_iterations": &config.MaxSelectIterations,
	} {
		if v, ok := data.GetOk(field); ok {
			*dst = v.(int)
		}
	}

	if v, ok := data.GetOk("service_fee_sats"); ok {
		config.ServiceFeeSats = v.(int64)
	}
	if v, ok := data.GetOk("retry_delay"); ok {
		config.RetryDelay = time.Duration(v.(int)) * time.Second
	}

	if err := config.validate(); err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	entry, err := logical.StorageEntryJSON(configStoragePath, config)
	if err != nil {
		return nil, err
	}

	if err := req.Storage.Put(ctx, entry); err != nil {
		return nil, err
	}

	// Reset the provider so the new config takes effect
	b.reset()

	b.Logger().Info("config saved", "backend", config.Backend, "network", config.Network,
		"min_confirmations", config.MinConfirmations, "service_fee_sats", config.ServiceFeeSats)
	return nil, nil
}

func (b *stampsBackend) pathConfigDelete(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.Logger().Debug("deleting config")
	err := req.Storage.Delete(ctx, configStoragePath)
	if err != nil {
		return nil, fmt.Errorf("error deleting config: %w", err)
	}

	b.reset()

	b.Logger().Info("config deleted")
	return nil, nil
}

// getStoredConfig retrieves the configuration from storage, nil if unset
func getStoredConfig(ctx context.Context, s logical.Storage) (*stampsConfig, error) {
	entry, err := s.Get(ctx, configStoragePath)
	if err != nil {
		return nil, fmt.Errorf("error retrieving config: %w", err)
	}

	if entry == nil {
		return nil, nil
	}

	config := defaultConfig()
	if err := entry.DecodeJSON(config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	return config, nil
}

// getConfig retrieves the configuration, falling back to the defaults
func getConfig(ctx context.Context, s logical.Storage) (*stampsConfig, error) {
	config, err := getStoredConfig(ctx, s)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return defaultConfig(), nil
	}
	return config, nil
}

const pathConfigHelpSynopsis = `
Configure the stamps secrets engine.
`

const pathConfigHelpDescription = `
This endpoint configures the stamps secrets engine with a network, a
blockchain data source, and transaction building parameters.

Parameters:
  - network: mainnet, testnet4, signet, or regtest (default: mainnet)
  - backend: electrum, mempool, or bitcoind (default: electrum)
  - electrum_url: Electrum server URL (optional - uses random server from pool if not set)
  - mempool_url: mempool.space style API base URL (optional)
  - rpc_host, rpc_user, rpc_pass: bitcoind JSON-RPC connection
  - min_confirmations: Minimum confirmations to spend UTXOs (default: 1)
  - service_fee_address, service_fee_sats: Fixed fee paid by every transaction
  - burn_key: Third key of multisig data outputs (default: 0202...02)
  - retry_max_attempts, retry_delay: Retry policy for data source calls
  - max_key_attempts, max_select_iterations: Search and selection caps

Example (testnet4 with random Electrum server selection):
  $ vault write stamps/config network=testnet4

Example (mainnet through mempool.space with a service fee):
  $ vault write stamps/config \
      network=mainnet \
      backend=mempool \
      service_fee_address=bc1q... \
      service_fee_sats=1000

Example (regtest against a local node):
  $ vault write stamps/config \
      network=regtest \
      backend=bitcoind \
      rpc_host=127.0.0.1:18443 rpc_user=user rpc_pass=pass

The bitcoind password is never returned by reads.
`
