package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/stampchain-io/vault-plugin-stamps/chain"
	"github.com/stampchain-io/vault-plugin-stamps/multisig"
	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

// options holds the global flags.
type options struct {
	Backend     string
	Network     string
	ElectrumURL string
	MempoolURL  string
	RPCHost     string
	RPCUser     string
	RPCPass     string

	MinConfirmations int
	RetryAttempts    int
	RetryDelay       time.Duration

	// CachePath is a bbolt file for previous transactions. Empty keeps
	// them in memory.
	CachePath string

	ServiceFeeAddress string
	ServiceFeeSats    int64
	BurnKey           string

	LogLevel string

	// newBackend is replaced in tests.
	newBackend func(cfg chain.BackendConfig) (chain.Backend, error)
}

func newOptions() *options {
	return &options{newBackend: chain.NewBackend}
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stampctl",
		Short: "Build unsigned Bitcoin Stamps transactions",
		Long: `
stampctl builds unsigned SRC-20 and CIP33 stamp transactions and prints
them as PSBTs. Nothing is signed or broadcast.

UTXOs, previous transactions and fee estimates come from an Electrum
server, a mempool.space style API or bitcoind. The cip33 commands work
offline.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			name, err := network.Canonical(opts.Network)
			if err != nil {
				return err
			}
			opts.Network = name
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.Backend, "backend", chain.BackendElectrum, "Data source: electrum, mempool or bitcoind")
	flags.StringVarP(&opts.Network, "network", "n", "mainnet", "Network: mainnet, testnet4, signet or regtest")
	flags.StringVar(&opts.ElectrumURL, "electrum-url", "", "Electrum server as host:port, tcp:// or ssl:// (default: random public server)")
	flags.StringVar(&opts.MempoolURL, "mempool-url", "", "mempool.space compatible API base URL (default: mempool.space)")
	flags.StringVar(&opts.RPCHost, "rpc-host", "", "bitcoind RPC host:port")
	flags.StringVar(&opts.RPCUser, "rpc-user", "", "bitcoind RPC user")
	flags.StringVar(&opts.RPCPass, "rpc-pass", os.Getenv("STAMPCTL_RPC_PASS"), "bitcoind RPC password (env STAMPCTL_RPC_PASS)")
	flags.IntVar(&opts.MinConfirmations, "min-confirmations", 1, "Minimum confirmations of spent UTXOs")
	flags.IntVar(&opts.RetryAttempts, "retry-attempts", chain.DefaultMaxAttempts, "Attempts per data source request")
	flags.DurationVar(&opts.RetryDelay, "retry-delay", chain.DefaultRetryDelay, "Delay between data source attempts")
	flags.StringVar(&opts.CachePath, "cache", "", "bbolt file caching previous transactions between runs")
	flags.StringVar(&opts.ServiceFeeAddress, "service-fee-address", "", "Address receiving a fixed service fee")
	flags.Int64Var(&opts.ServiceFeeSats, "service-fee-sats", 0, "Service fee in satoshis")
	flags.StringVar(&opts.BurnKey, "burn-key", multisig.DefaultBurnKey, "Hex public key used as the third multisig key")
	flags.StringVar(&opts.LogLevel, "log-level", "warn", "Log level: trace, debug, info, warn or error")

	rootCmd.AddCommand(
		newCIP33Cmd(opts),
		newSRC20Cmd(opts),
		newStampCmd(opts),
		newFeesCmd(opts),
	)
	return rootCmd
}

func (o *options) logger(cmd *cobra.Command) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "stampctl",
		Level:  hclog.LevelFromString(o.LogLevel),
		Output: cmd.ErrOrStderr(),
	})
}

// session is an open data source.
type session struct {
	provider *chain.Provider
	cache    *chain.BoltCache
	logger   hclog.Logger
}

func (s *session) Close() {
	s.provider.Close()
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("failed to close cache", "error", err)
		}
	}
}

// open connects to the configured data source.
func (o *options) open(cmd *cobra.Command) (*session, error) {
	logger := o.logger(cmd)

	retry := chain.RetryPolicy{
		MaxAttempts: o.RetryAttempts,
		Delay:       o.RetryDelay,
		Logger:      logger.Named("retry"),
	}

	var (
		s     = &session{logger: logger}
		cache chain.TxCache
		err   error
	)
	if o.CachePath != "" {
		if s.cache, err = chain.OpenBoltCache(o.CachePath); err != nil {
			return nil, err
		}
		cache = s.cache
		logger.Debug("using transaction cache", "path", o.CachePath)
	}

	backend, err := o.newBackend(chain.BackendConfig{
		Kind:        o.Backend,
		Network:     o.Network,
		ElectrumURL: o.ElectrumURL,
		MempoolURL:  o.MempoolURL,
		RPCHost:     o.RPCHost,
		RPCUser:     o.RPCUser,
		RPCPass:     o.RPCPass,
		Retry:       retry,
		Logger:      logger,
	})
	if err != nil {
		if s.cache != nil {
			s.cache.Close()
		}
		return nil, err
	}

	s.provider, err = chain.NewProvider(backend, chain.Config{
		Network:          o.Network,
		MinConfirmations: o.MinConfirmations,
		Retry:            retry,
		Cache:            cache,
		Logger:           logger.Named("provider"),
	})
	if err != nil {
		backend.Close()
		if s.cache != nil {
			s.cache.Close()
		}
		return nil, err
	}
	return s, nil
}

// assembler returns an assembler configured from the global flags.
func (o *options) assembler(lookup txbuilder.TxLookup, logger hclog.Logger) (*txbuilder.Assembler, error) {
	burnKey, err := multisig.ParseBurnKey(o.BurnKey)
	if err != nil {
		return nil, err
	}
	return txbuilder.NewAssembler(lookup, txbuilder.Config{
		Network: o.Network,
		BurnKey: burnKey,
		Logger:  logger.Named("assembler"),
	})
}

func (o *options) serviceFee() (*txbuilder.ServiceFee, error) {
	if o.ServiceFeeAddress == "" || o.ServiceFeeSats == 0 {
		return nil, nil
	}
	if o.ServiceFeeSats < txbuilder.DustLimit {
		return nil, fmt.Errorf("service fee must be at least %d sats", txbuilder.DustLimit)
	}
	return &txbuilder.ServiceFee{Address: o.ServiceFeeAddress, Value: o.ServiceFeeSats}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
