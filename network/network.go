// Package network maps the network names used across the plugin to btcd
// chain parameters.
package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	Mainnet  = "mainnet"
	Testnet4 = "testnet4"
	Signet   = "signet"
	Regtest  = "regtest"
)

// ErrUnknownNetwork indicates a network name with no chain parameters.
var ErrUnknownNetwork = errors.New("unknown network")

// Params returns the chain parameters for a network name. The legacy names
// "bitcoin" and "testnet" are accepted as aliases of mainnet and testnet.
func Params(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case Mainnet, "bitcoin", "":
		return &chaincfg.MainNetParams, nil
	case Testnet4, "testnet", "testnet3":
		// Testnet4 shares the tb1 address format with testnet3
		return &chaincfg.TestNet3Params, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: mainnet, testnet4, signet, regtest)", ErrUnknownNetwork, name)
	}
}

// Canonical normalizes aliases to the names stored in config.
func Canonical(name string) (string, error) {
	params, err := Params(name)
	if err != nil {
		return "", err
	}
	switch params.Name {
	case chaincfg.MainNetParams.Name:
		return Mainnet, nil
	case chaincfg.TestNet3Params.Name:
		return Testnet4, nil
	case chaincfg.SigNetParams.Name:
		return Signet, nil
	default:
		return Regtest, nil
	}
}

// HRP returns the bech32 human readable part for segwit addresses.
func HRP(name string) (string, error) {
	params, err := Params(name)
	if err != nil {
		return "", err
	}
	return params.Bech32HRPSegwit, nil
}
