package txbuilder

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/stampchain-io/vault-plugin-stamps/cip33"
	"github.com/stampchain-io/vault-plugin-stamps/frame"
	"github.com/stampchain-io/vault-plugin-stamps/multisig"
	"github.com/stampchain-io/vault-plugin-stamps/scramble"
)

type fakeLookup struct {
	mu    sync.Mutex
	txs   map[string]*PrevTx
	err   error
	calls int
}

func (f *fakeLookup) GetTransaction(_ context.Context, txid string) (*PrevTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[txid]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", txid)
	}
	return tx, nil
}

// witnessPrev registers a single-output P2WPKH transaction and returns the
// UTXO spending it.
func (f *fakeLookup) witnessPrev(t *testing.T, txid string, value int64) UTXO {
	if f.txs == nil {
		f.txs = make(map[string]*PrevTx)
	}
	f.txs[txid] = &PrevTx{
		TxID: txid,
		Outputs: []PrevOutput{
			{Script: p2wpkhScript(t), Value: value, ScriptType: ScriptTypeWitnessV0PKH},
		},
	}
	return UTXO{TxID: txid, Vout: 0, Value: value, Script: p2wpkhScript(t)}
}

// legacyPrev registers a real serialized P2PKH funding transaction and
// returns the UTXO spending its second output.
func (f *fakeLookup) legacyPrev(t *testing.T, value int64) (UTXO, *wire.MsgTx) {
	if f.txs == nil {
		f.txs = make(map[string]*PrevTx)
	}
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x42}, 0), []byte{0x51}, nil))
	tx.AddTxOut(wire.NewTxOut(1000, p2wpkhScript(t)))
	tx.AddTxOut(wire.NewTxOut(value, p2pkhScript(t)))

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	txid := tx.TxHash().String()
	f.txs[txid] = &PrevTx{
		TxID: txid,
		Outputs: []PrevOutput{
			{Script: p2wpkhScript(t), Value: 1000, ScriptType: ScriptTypeWitnessV0PKH},
			{Script: p2pkhScript(t), Value: value, ScriptType: ScriptTypePubKeyHash},
		},
		Hex: hex.EncodeToString(buf.Bytes()),
	}
	return UTXO{TxID: txid, Vout: 1, Value: value, Script: p2pkhScript(t)}, tx
}

func newTestAssembler(t *testing.T, lookup TxLookup) *Assembler {
	t.Helper()
	a, err := NewAssembler(lookup, Config{
		Network: "mainnet",
		Rand:    rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("NewAssembler() error = %v", err)
	}
	return a
}

func TestAssembleMultisig(t *testing.T) {
	lookup := &fakeLookup{}
	small := lookup.witnessPrev(t, testTxID(0x01), 5000)
	large := lookup.witnessPrev(t, testTxID(0x02), 10000)
	payload := []byte("stamp:PEPE1")

	a := newTestAssembler(t, lookup)
	unsigned, err := a.Assemble(context.Background(), Request{
		UTXOs:         []UTXO{small, large},
		Payload:       payload,
		Encoding:      EncodingMultisig,
		ChangeAddress: testP2WPKHAddress,
		FeeRate:       10,
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	tx := unsigned.Packet.UnsignedTx
	if tx.Version != TxVersion {
		t.Errorf("version = %d, want %d", tx.Version, TxVersion)
	}
	if len(tx.TxIn) != 1 {
		t.Fatalf("inputs = %d, want 1", len(tx.TxIn))
	}
	if got := tx.TxIn[0].PreviousOutPoint.Hash.String(); got != large.TxID {
		t.Errorf("input spends %s, want the largest UTXO %s", got, large.TxID)
	}
	if tx.TxIn[0].Sequence != SequenceRBF {
		t.Errorf("sequence = %x, want %x", tx.TxIn[0].Sequence, SequenceRBF)
	}

	if len(tx.TxOut) != 2 {
		t.Fatalf("outputs = %d, want data + change", len(tx.TxOut))
	}
	if tx.TxOut[0].Value != MultisigDustValue || !multisig.IsDataScript(tx.TxOut[0].PkScript) {
		t.Errorf("output 0 = %d %x, want a %d sat data output", tx.TxOut[0].Value, tx.TxOut[0].PkScript, MultisigDustValue)
	}
	if tx.TxOut[1].Value != 4603 || !bytes.Equal(tx.TxOut[1].PkScript, p2wpkhScript(t)) {
		t.Errorf("change = %d %x, want 4603 to the change address", tx.TxOut[1].Value, tx.TxOut[1].PkScript)
	}
	if unsigned.Fee != 4620 || unsigned.DataOutputs != 1 {
		t.Errorf("plan fee = %d data outputs = %d, want 4620 and 1", unsigned.Fee, unsigned.DataOutputs)
	}

	in := unsigned.Packet.Inputs[0]
	if in.WitnessUtxo == nil || in.WitnessUtxo.Value != large.Value {
		t.Errorf("witness UTXO = %+v, want value %d", in.WitnessUtxo, large.Value)
	}
	if in.NonWitnessUtxo != nil || in.RedeemScript != nil {
		t.Error("witness input should carry neither a full transaction nor a redeem script")
	}

	// The payload is recoverable with the key of the first input.
	chunks, err := multisig.Extract([][]byte{tx.TxOut[0].PkScript})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	key, _ := scramble.KeyFromTxID(large.TxID)
	framed, err := scramble.Apply(key, chunks)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	text, err := frame.Unframe(framed)
	if err != nil {
		t.Fatalf("Unframe() error = %v", err)
	}
	if !bytes.Equal(text, payload) {
		t.Errorf("recovered %q, want %q", text, payload)
	}

	if _, err := unsigned.B64(); err != nil {
		t.Errorf("B64() error = %v", err)
	}
	if _, err := unsigned.Hex(); err != nil {
		t.Errorf("Hex() error = %v", err)
	}
	if unsigned.TxID() != tx.TxHash().String() {
		t.Error("TxID() does not match the unsigned transaction")
	}
}

func TestAssembleOutputOrder(t *testing.T) {
	lookup := &fakeLookup{}
	utxo := lookup.witnessPrev(t, testTxID(0x03), 100000)

	leading := Output{Script: p2shScript(t), Value: 1000}
	a := newTestAssembler(t, lookup)
	unsigned, err := a.Assemble(context.Background(), Request{
		UTXOs:          []UTXO{utxo},
		Payload:        bytes.Repeat([]byte("stamp:"), 20),
		LeadingOutputs: []Output{leading},
		Recipient:      testP2PKHAddress,
		ServiceFee:     &ServiceFee{Address: testP2WSHAddress, Value: 1500},
		ChangeAddress:  testP2WPKHAddress,
		FeeRate:        5,
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	outs := unsigned.Packet.UnsignedTx.TxOut
	data := unsigned.DataOutputs
	if len(outs) != 1+1+data+1+1 {
		t.Fatalf("outputs = %d, want leading + recipient + %d data + service fee + change", len(outs), data)
	}
	if !bytes.Equal(outs[0].PkScript, leading.Script) {
		t.Error("leading output is not first")
	}
	if outs[1].Value != RecipientValue {
		t.Errorf("recipient value = %d, want %d", outs[1].Value, RecipientValue)
	}
	for i := 2; i < 2+data; i++ {
		if !multisig.IsDataScript(outs[i].PkScript) {
			t.Errorf("output %d is not a data output", i)
		}
	}
	if outs[2+data].Value != 1500 {
		t.Errorf("service fee value = %d, want 1500", outs[2+data].Value)
	}
	change := outs[len(outs)-1]
	if !bytes.Equal(change.PkScript, p2wpkhScript(t)) {
		t.Error("change is not last")
	}

	var total int64
	for _, o := range outs {
		total += o.Value
	}
	if total+unsigned.Fee != utxo.Value {
		t.Errorf("outputs %d + fee %d != inputs %d", total, unsigned.Fee, utxo.Value)
	}
}

func TestAssembleCIP33(t *testing.T) {
	lookup := &fakeLookup{}
	utxo := lookup.witnessPrev(t, testTxID(0x04), 50000)
	payload := bytes.Repeat([]byte{0xab}, 100)

	a := newTestAssembler(t, lookup)
	unsigned, err := a.Assemble(context.Background(), Request{
		UTXOs:         []UTXO{utxo},
		Payload:       payload,
		Encoding:      EncodingCIP33,
		ChangeAddress: testP2WPKHAddress,
		FeeRate:       2,
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	// 2 + 100 bytes in 32 byte chunks.
	if unsigned.DataOutputs != 4 {
		t.Fatalf("data outputs = %d, want 4", unsigned.DataOutputs)
	}

	var addrs []string
	for i := 0; i < unsigned.DataOutputs; i++ {
		out := unsigned.Packet.UnsignedTx.TxOut[i]
		if out.Value != CIP33DustValue+int64(i) {
			t.Errorf("output %d value = %d, want %d", i, out.Value, CIP33DustValue+i)
		}
		addr, ok := AddressForScript(out.PkScript, &chaincfg.MainNetParams)
		if !ok {
			t.Fatalf("output %d is not a standard address output", i)
		}
		addrs = append(addrs, addr)
	}

	decoded, err := cip33.Decode(addrs)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("CIP33 outputs do not decode to the payload")
	}
}

func TestAssembleLegacyInput(t *testing.T) {
	lookup := &fakeLookup{}
	utxo, prev := lookup.legacyPrev(t, 60000)

	a := newTestAssembler(t, lookup)
	unsigned, err := a.Assemble(context.Background(), Request{
		UTXOs:         []UTXO{utxo},
		Payload:       []byte("stamp:KEVIN"),
		ChangeAddress: testP2WPKHAddress,
		FeeRate:       3,
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	in := unsigned.Packet.Inputs[0]
	if in.NonWitnessUtxo == nil {
		t.Fatal("legacy input should carry the full previous transaction")
	}
	if in.NonWitnessUtxo.TxHash() != prev.TxHash() {
		t.Error("previous transaction hash mismatch")
	}
	if in.WitnessUtxo != nil {
		t.Error("legacy input should not carry a witness UTXO")
	}
	if got := unsigned.Packet.UnsignedTx.TxIn[0].PreviousOutPoint.Index; got != 1 {
		t.Errorf("outpoint index = %d, want 1", got)
	}
}

func TestAssembleNestedWitnessChange(t *testing.T) {
	lookup := &fakeLookup{}
	u1 := lookup.witnessPrev(t, testTxID(0x05), 800)
	u2 := lookup.witnessPrev(t, testTxID(0x06), 800)
	u3 := lookup.witnessPrev(t, testTxID(0x07), 800)

	pubKey := mustHex(t, testPubKey)
	redeem, err := NestedWitnessRedeemScript(pubKey, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	changeAddr, err := btcutil.NewAddressScriptHash(redeem, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}

	a := newTestAssembler(t, lookup)
	req := Request{
		UTXOs:         []UTXO{u1, u2, u3},
		Payload:       []byte("stamp:PEPE1"),
		ChangeAddress: changeAddr.EncodeAddress(),
		PublicKey:     pubKey,
		FeeRate:       2,
	}
	unsigned, err := a.Assemble(context.Background(), req)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(unsigned.Packet.Inputs) < 2 {
		t.Fatalf("inputs = %d, want at least 2", len(unsigned.Packet.Inputs))
	}
	for i, in := range unsigned.Packet.Inputs {
		if !bytes.Equal(in.RedeemScript, redeem) {
			t.Errorf("input %d redeem script = %x, want %x", i, in.RedeemScript, redeem)
		}
	}

	req.PublicKey = nil
	_, err = a.Assemble(context.Background(), req)
	if !errors.Is(err, ErrMissingPublicKey) {
		t.Errorf("Assemble() without public key error = %v, want ErrMissingPublicKey", err)
	}
}

func TestAssembleDustChange(t *testing.T) {
	lookup := &fakeLookup{}
	// 777 data + (108 + 113 + 10) * 2 fee = 1239, leaving 300 change.
	utxo := lookup.witnessPrev(t, testTxID(0x08), 1539)

	a := newTestAssembler(t, lookup)
	unsigned, err := a.Assemble(context.Background(), Request{
		UTXOs:         []UTXO{utxo},
		Payload:       []byte("stamp:PEPE1"),
		ChangeAddress: testP2WPKHAddress,
		FeeRate:       1,
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if n := len(unsigned.Packet.UnsignedTx.TxOut); n != 1 {
		t.Errorf("outputs = %d, want the data output only", n)
	}
	if unsigned.Change != 0 || unsigned.Fee != 762 {
		t.Errorf("change = %d fee = %d, want 0 and 762", unsigned.Change, unsigned.Fee)
	}
}

func TestAssembleErrors(t *testing.T) {
	lookup := &fakeLookup{}
	good := lookup.witnessPrev(t, testTxID(0x09), 20000)

	tests := []struct {
		name      string
		lookup    *fakeLookup
		req       Request
		wantStage Stage
		wantErr   error
	}{
		{
			name:      "empty payload",
			lookup:    lookup,
			req:       Request{UTXOs: []UTXO{good}, ChangeAddress: testP2WPKHAddress, FeeRate: 1},
			wantStage: StageFraming,
			wantErr:   ErrEmptyPayload,
		},
		{
			name:      "unknown encoding",
			lookup:    lookup,
			req:       Request{UTXOs: []UTXO{good}, Payload: []byte("x"), Encoding: "olga", ChangeAddress: testP2WPKHAddress, FeeRate: 1},
			wantStage: StageEncoding,
			wantErr:   ErrUnknownEncoding,
		},
		{
			name:      "bad change address",
			lookup:    lookup,
			req:       Request{UTXOs: []UTXO{good}, Payload: []byte("x"), ChangeAddress: "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", FeeRate: 1},
			wantStage: StageEncoding,
			wantErr:   ErrInvalidOutput,
		},
		{
			name:      "insufficient funds",
			lookup:    lookup,
			req:       Request{UTXOs: []UTXO{good}, Payload: bytes.Repeat([]byte("x"), 4000), ChangeAddress: testP2WPKHAddress, FeeRate: 50},
			wantStage: StageSelecting,
			wantErr:   ErrInsufficientFunds,
		},
		{
			name:      "lookup failure",
			lookup:    &fakeLookup{err: errors.New("connection refused")},
			req:       Request{UTXOs: []UTXO{good}, Payload: []byte("x"), ChangeAddress: testP2WPKHAddress, FeeRate: 1},
			wantStage: StageResolvingInputs,
		},
		{
			name: "value mismatch",
			lookup: &fakeLookup{txs: map[string]*PrevTx{
				good.TxID: {TxID: good.TxID, Outputs: []PrevOutput{{Script: p2wpkhScript(t), Value: 1, ScriptType: ScriptTypeWitnessV0PKH}}},
			}},
			req:       Request{UTXOs: []UTXO{good}, Payload: []byte("x"), ChangeAddress: testP2WPKHAddress, FeeRate: 1},
			wantStage: StageResolvingInputs,
			wantErr:   ErrPrevOutMismatch,
		},
		{
			name: "missing output",
			lookup: &fakeLookup{txs: map[string]*PrevTx{
				good.TxID: {TxID: good.TxID},
			}},
			req:       Request{UTXOs: []UTXO{good}, Payload: []byte("x"), ChangeAddress: testP2WPKHAddress, FeeRate: 1},
			wantStage: StageResolvingInputs,
			wantErr:   ErrPrevOutMismatch,
		},
		{
			name: "legacy hex of another transaction",
			lookup: &fakeLookup{txs: map[string]*PrevTx{
				good.TxID: {TxID: good.TxID, Outputs: []PrevOutput{{Script: p2pkhScript(t), Value: good.Value, ScriptType: ScriptTypePubKeyHash}},
					Hex: "01000000000000000000"},
			}},
			req:       Request{UTXOs: []UTXO{good}, Payload: []byte("x"), ChangeAddress: testP2WPKHAddress, FeeRate: 1},
			wantStage: StageResolvingInputs,
			wantErr:   ErrPrevOutMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssembler(t, tt.lookup)
			_, err := a.Assemble(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Assemble() succeeded, want error")
			}
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("Assemble() error = %v, want a StageError", err)
			}
			if stageErr.Stage != tt.wantStage {
				t.Errorf("stage = %s, want %s", stageErr.Stage, tt.wantStage)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Assemble() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlanDoesNoLookups(t *testing.T) {
	lookup := &fakeLookup{}
	utxo := lookup.witnessPrev(t, testTxID(0x0a), 20000)

	a := newTestAssembler(t, lookup)
	plan, err := a.Plan(Request{
		UTXOs:         []UTXO{utxo},
		Payload:       []byte("stamp:PEPE1"),
		ChangeAddress: testP2WPKHAddress,
		FeeRate:       10,
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if lookup.calls != 0 {
		t.Errorf("Plan() made %d lookups, want 0", lookup.calls)
	}
	if plan.DataOutputs != 1 || plan.Selection == nil {
		t.Errorf("Plan() = %+v", plan)
	}
}

func TestNewAssemblerRejectsBadConfig(t *testing.T) {
	if _, err := NewAssembler(nil, Config{Network: "litecoin"}); err == nil {
		t.Error("NewAssembler() accepted an unknown network")
	}
	if _, err := NewAssembler(nil, Config{Network: "mainnet", BurnKey: []byte{0x02}}); !errors.Is(err, multisig.ErrInvalidBurnKey) {
		t.Errorf("NewAssembler() error = %v, want ErrInvalidBurnKey", err)
	}
}
