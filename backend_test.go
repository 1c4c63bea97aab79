package stamps

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/chain"
)

const (
	testSource       = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	testSourceScript = "0014751e76e8199196d454941c45d1b3a323f1433bd6"
	testFeeAddress   = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
)

// fakeChain is an in-memory chain.Backend.
type fakeChain struct {
	mu     sync.Mutex
	utxos  []chain.UTXO
	txs    map[string]string
	fee    int64
	tip    int64
	closed int
}

func newFakeChain() *fakeChain {
	return &fakeChain{txs: make(map[string]string), fee: 5, tip: 100}
}

// fund adds a confirmed UTXO of value paying to the test source address.
func (f *fakeChain) fund(t *testing.T, value int64) string {
	t.Helper()
	script, _ := hex.DecodeString(testSourceScript)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{byte(len(f.utxos) + 1)}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, script))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	txid := tx.TxHash().String()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[txid] = hex.EncodeToString(buf.Bytes())
	f.utxos = append(f.utxos, chain.UTXO{TxID: txid, Vout: 0, Value: value, Height: f.tip})
	return txid
}

func (f *fakeChain) ListUnspent(ctx context.Context, address string, script []byte) ([]chain.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if address != testSource {
		return nil, nil
	}
	return append([]chain.UTXO(nil), f.utxos...), nil
}

func (f *fakeChain) RawTransaction(ctx context.Context, txid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.txs[txid]
	if !ok {
		return "", chain.ErrNotFound
	}
	return raw, nil
}

func (f *fakeChain) FeeRate(ctx context.Context) (int64, error) { return f.fee, nil }

func (f *fakeChain) TipHeight(ctx context.Context) (int64, error) { return f.tip, nil }

func (f *fakeChain) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// getTestBackend returns a backend whose data source is fc.
func getTestBackend(t *testing.T, fc *fakeChain) (*stampsBackend, logical.Storage) {
	t.Helper()
	config := logical.TestBackendConfig()
	config.StorageView = &logical.InmemStorage{}
	config.Logger = hclog.NewNullLogger()

	b := backend()
	if fc != nil {
		b.newBackend = func(chain.BackendConfig) (chain.Backend, error) { return fc, nil }
	}
	if err := b.Setup(context.Background(), config); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return b, config.StorageView
}

func handle(t *testing.T, b *stampsBackend, s logical.Storage, op logical.Operation, path string, data map[string]interface{}) *logical.Response {
	t.Helper()
	resp, err := b.HandleRequest(context.Background(), &logical.Request{
		Operation: op,
		Path:      path,
		Storage:   s,
		Data:      data,
	})
	if err != nil {
		t.Fatalf("%s %s: error = %v", op, path, err)
	}
	return resp
}

func TestFactory(t *testing.T) {
	config := logical.TestBackendConfig()
	config.StorageView = &logical.InmemStorage{}

	b, err := Factory(context.Background(), config)
	if err != nil {
		t.Fatalf("Factory() error = %v", err)
	}
	if b == nil {
		t.Fatal("Factory() returned nil backend")
	}
}

func TestProviderLifecycle(t *testing.T) {
	fc := newFakeChain()
	b, s := getTestBackend(t, fc)
	ctx := context.Background()

	p1, err := b.getProvider(ctx, s)
	if err != nil {
		t.Fatalf("getProvider() error = %v", err)
	}
	p2, err := b.getProvider(ctx, s)
	if err != nil {
		t.Fatalf("getProvider() error = %v", err)
	}
	if p1 != p2 {
		t.Error("getProvider() should reuse the provider")
	}

	b.invalidate(ctx, "unrelated")
	if fc.closed != 0 {
		t.Errorf("invalidate(unrelated) closed the provider")
	}

	b.invalidate(ctx, configStoragePath)
	if fc.closed != 1 {
		t.Errorf("invalidate(config) closed %d times, want 1", fc.closed)
	}

	p3, err := b.getProvider(ctx, s)
	if err != nil {
		t.Fatalf("getProvider() error = %v", err)
	}
	if p3 == p1 {
		t.Error("getProvider() after invalidate should build a new provider")
	}
	if p3.Network() != "mainnet" {
		t.Errorf("Network() = %q, want mainnet", p3.Network())
	}
}

func TestIsUserError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{chain.ErrNotFound, true},
		{chain.ErrTransientIO, false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := isUserError(tt.err); got != tt.want {
			t.Errorf("isUserError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
