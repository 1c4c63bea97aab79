package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/stampchain-io/vault-plugin-stamps/network"
)

// Address types reported by AddressType
const (
	AddressTypeP2PKH  = "p2pkh"
	AddressTypeP2SH   = "p2sh"
	AddressTypeP2WPKH = "p2wpkh"
	AddressTypeP2WSH  = "p2wsh"
	AddressTypeP2TR   = "p2tr"
)

func decodeAddress(address string, params *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not for %s network", address, params.Name)
	}
	return addr, nil
}

// ScriptForAddress returns the scriptPubKey paying to address.
func ScriptForAddress(address string, networkName string) ([]byte, error) {
	params, err := network.Params(networkName)
	if err != nil {
		return nil, err
	}
	return scriptForAddress(address, params)
}

func scriptForAddress(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := decodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create scriptPubKey for %s: %w", address, err)
	}
	return script, nil
}

// ValidateAddress checks if an address is valid for the given network
func ValidateAddress(address string, networkName string) error {
	params, err := network.Params(networkName)
	if err != nil {
		return err
	}
	_, err = decodeAddress(address, params)
	return err
}

// AddressType returns the type of a Bitcoin address
func AddressType(address string, networkName string) (string, error) {
	params, err := network.Params(networkName)
	if err != nil {
		return "", err
	}
	addr, err := decodeAddress(address, params)
	if err != nil {
		return "", err
	}
	return addressType(addr), nil
}

func addressType(addr btcutil.Address) string {
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return AddressTypeP2PKH
	case *btcutil.AddressScriptHash:
		return AddressTypeP2SH
	case *btcutil.AddressWitnessPubKeyHash:
		return AddressTypeP2WPKH
	case *btcutil.AddressWitnessScriptHash:
		return AddressTypeP2WSH
	case *btcutil.AddressTaproot:
		return AddressTypeP2TR
	default:
		return "unknown"
	}
}

// AddressForScript returns the address a standard script pays to, if any.
func AddressForScript(script []byte, params *chaincfg.Params) (string, bool) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil || len(addrs) != 1 {
		return "", false
	}
	switch class {
	case txscript.PubKeyHashTy, txscript.ScriptHashTy, txscript.WitnessV0PubKeyHashTy,
		txscript.WitnessV0ScriptHashTy, txscript.WitnessV1TaprootTy:
		return addrs[0].EncodeAddress(), true
	default:
		return "", false
	}
}

// NestedWitnessRedeemScript returns the P2WPKH program that a P2SH-P2WPKH
// address commits to for the given compressed public key.
func NestedWitnessRedeemScript(pubKey []byte, params *chaincfg.Params) ([]byte, error) {
	if len(pubKey) == 0 {
		return nil, ErrMissingPublicKey
	}
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingPublicKey, err)
	}
	hash := btcutil.Hash160(key.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create P2WPKH program: %w", err)
	}
	return txscript.PayToAddrScript(addr)
}
