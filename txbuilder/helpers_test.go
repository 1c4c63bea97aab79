package txbuilder

import (
	"encoding/hex"
	"strings"
	"testing"
)

const (
	testP2WPKHAddress = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	testP2WSHAddress  = "bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3"
	testP2PKHAddress  = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"

	// Generator point, a valid compressed key.
	testPubKey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func testTxID(b byte) string {
	return strings.Repeat(hex.EncodeToString([]byte{b}), 32)
}

func p2wpkhScript(t testing.TB) []byte {
	return mustHex(t, "0014751e76e8199196d454941c45d1b3a323f1433bd6")
}

func p2pkhScript(t testing.TB) []byte {
	return mustHex(t, "76a914751e76e8199196d454941c45d1b3a323f1433bd688ac")
}

func p2shScript(t testing.TB) []byte {
	return mustHex(t, "a914751e76e8199196d454941c45d1b3a323f1433bd687")
}

// dataScript returns a bare 1-of-3 multisig script with well formed keys.
func dataScript(t testing.TB) []byte {
	return mustHex(t, "51"+
		"21"+"02"+strings.Repeat("11", 32)+
		"21"+"03"+strings.Repeat("22", 32)+
		"21"+"02"+strings.Repeat("02", 32)+
		"53ae")
}

func sumInputs(utxos []UTXO) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}

func sumOutputs(outputs []Output) int64 {
	var total int64
	for _, o := range outputs {
		total += o.Value
	}
	return total
}
