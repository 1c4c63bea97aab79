package txbuilder

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/stampchain-io/vault-plugin-stamps/cip33"
	"github.com/stampchain-io/vault-plugin-stamps/frame"
	"github.com/stampchain-io/vault-plugin-stamps/multisig"
	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/scramble"
)

// Encoding selects how the payload is carried on chain.
type Encoding string

const (
	// EncodingMultisig frames and scrambles the payload into bare multisig outputs.
	EncodingMultisig Encoding = "multisig"

	// EncodingCIP33 stores the payload in P2WSH witness program addresses.
	EncodingCIP33 Encoding = "cip33"
)

const (
	// MultisigDustValue is the value of each multisig data output.
	MultisigDustValue = 777

	// CIP33DustValue is the base value of CIP33 data outputs. Output i
	// carries CIP33DustValue+i.
	CIP33DustValue = 330

	// RecipientValue is the default value sent to the recipient of a token transaction.
	RecipientValue = 789

	// DustLimit is the smallest change output worth creating. Smaller
	// change is left to the miner.
	DustLimit = 546

	// SequenceRBF is the sequence number that enables Replace-By-Fee (BIP125)
	SequenceRBF = 0xFFFFFFFD

	// TxVersion is the version of assembled transactions.
	TxVersion = 2

	// lookupConcurrency bounds parallel previous transaction fetches.
	lookupConcurrency = 8
)

// Config configures an Assembler. Zero values select the defaults.
type Config struct {
	Network string

	// BurnKey is the third key of every multisig data output.
	BurnKey []byte

	// Rand drives the public key search. Defaults to crypto/rand.
	Rand io.Reader

	MaxKeyAttempts      int
	MaxSelectIterations int

	MultisigDust int64
	CIP33Dust    int64

	Logger hclog.Logger
}

// ServiceFee is an optional fixed payment added to every transaction.
type ServiceFee struct {
	Address string
	Value   int64
}

// Request describes one transaction to assemble.
type Request struct {
	UTXOs    []UTXO
	Payload  []byte
	Encoding Encoding

	// LeadingOutputs are placed before all other outputs.
	LeadingOutputs []Output

	// Recipient receives RecipientValue (or the override) right after the
	// leading outputs when set.
	Recipient      string
	RecipientValue int64

	ServiceFee *ServiceFee

	ChangeAddress string

	// PublicKey is the compressed key behind a P2SH-P2WPKH change address.
	PublicKey []byte

	FeeRate int64
}

// Plan is everything about a transaction that can be decided without
// looking up previous transactions.
type Plan struct {
	// Outputs are all outputs except change, in transaction order.
	Outputs     []Output
	DataOutputs int
	Selection   *Selection

	// Fee and Change are final: change below DustLimit is added to the fee.
	Fee    int64
	Change int64
}

// UnsignedTx is an assembled transaction ready for an external signer.
type UnsignedTx struct {
	Plan
	Packet *psbt.Packet
}

// B64 returns the base64 PSBT encoding.
func (u *UnsignedTx) B64() (string, error) {
	return u.Packet.B64Encode()
}

// Hex returns the hex PSBT encoding.
func (u *UnsignedTx) Hex() (string, error) {
	var buf bytes.Buffer
	if err := u.Packet.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize PSBT: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// TxID returns the id of the unsigned transaction.
func (u *UnsignedTx) TxID() string {
	return u.Packet.UnsignedTx.TxHash().String()
}

// Assembler builds unsigned data-carrying transactions.
type Assembler struct {
	lookup   TxLookup
	params   *chaincfg.Params
	cfg      Config
	selector *Selector
	finder   *multisig.KeyFinder
	logger   hclog.Logger
}

// NewAssembler returns an Assembler resolving inputs through lookup.
func NewAssembler(lookup TxLookup, cfg Config) (*Assembler, error) {
	params, err := network.Params(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.BurnKey == nil {
		cfg.BurnKey, _ = multisig.ParseBurnKey(multisig.DefaultBurnKey)
	} else if len(cfg.BurnKey) != multisig.PubKeySize {
		return nil, fmt.Errorf("%w: %d bytes", multisig.ErrInvalidBurnKey, len(cfg.BurnKey))
	}
	if cfg.MultisigDust <= 0 {
		cfg.MultisigDust = MultisigDustValue
	}
	if cfg.CIP33Dust <= 0 {
		cfg.CIP33Dust = CIP33DustValue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Assembler{
		lookup: lookup,
		params: params,
		cfg:    cfg,
		selector: &Selector{
			MaxIterations: cfg.MaxSelectIterations,
			Logger:        logger.Named("selector"),
		},
		finder: &multisig.KeyFinder{
			Rand:        cfg.Rand,
			MaxAttempts: cfg.MaxKeyAttempts,
		},
		logger: logger,
	}, nil
}

// Plan runs framing, encoding and coin selection for req.
func (a *Assembler) Plan(req Request) (*Plan, error) {
	if len(req.Payload) == 0 {
		return nil, stageErr(StageFraming, ErrEmptyPayload)
	}

	encoding := req.Encoding
	if encoding == "" {
		encoding = EncodingMultisig
	}

	var framed []byte
	switch encoding {
	case EncodingMultisig:
		var err error
		if framed, err = frame.Frame(req.Payload); err != nil {
			return nil, stageErr(StageFraming, err)
		}
	case EncodingCIP33:
		if len(req.Payload) > cip33.MaxPayloadSize {
			return nil, stageErr(StageFraming, fmt.Errorf("%w: %d bytes", cip33.ErrPayloadTooLarge, len(req.Payload)))
		}
	default:
		return nil, stageErr(StageEncoding, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding))
	}

	sorted := SortUTXOs(req.UTXOs)

	var data []Output
	switch encoding {
	case EncodingMultisig:
		if len(sorted) == 0 {
			return nil, stageErr(StageSelecting, fmt.Errorf("%w: no UTXOs available", ErrInsufficientFunds))
		}
		var err error
		if data, err = a.multisigOutputs(framed, sorted[0].TxID); err != nil {
			return nil, stageErr(StageEncoding, err)
		}
	case EncodingCIP33:
		var err error
		if data, err = a.cip33Outputs(req.Payload); err != nil {
			return nil, stageErr(StageEncoding, err)
		}
	}

	outputs, err := a.candidateOutputs(req, data)
	if err != nil {
		return nil, stageErr(StageEncoding, err)
	}

	sel, err := a.selector.Select(sorted, outputs, req.FeeRate)
	if err != nil {
		return nil, stageErr(StageSelecting, err)
	}

	plan := &Plan{
		Outputs:     outputs,
		DataOutputs: len(data),
		Selection:   sel,
		Fee:         sel.Fee,
		Change:      sel.Change,
	}
	if plan.Change < DustLimit {
		a.logger.Debug("change below dust limit, adding to fee", "change", plan.Change)
		plan.Fee += plan.Change
		plan.Change = 0
	}
	return plan, nil
}

func (a *Assembler) multisigOutputs(framed []byte, keyTxID string) ([]Output, error) {
	key, err := scramble.KeyFromTxID(keyTxID)
	if err != nil {
		return nil, err
	}
	scrambled, err := scramble.Apply(key, framed)
	if err != nil {
		return nil, err
	}
	scripts, err := multisig.Embed(scrambled, a.cfg.BurnKey, a.finder)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, len(scripts))
	for i, script := range scripts {
		outputs[i] = Output{Script: script, Value: a.cfg.MultisigDust}
	}
	return outputs, nil
}

func (a *Assembler) cip33Outputs(payload []byte) ([]Output, error) {
	addrs, err := cip33.Encode(payload, a.params.Name)
	if err != nil {
		return nil, err
	}
	outputs := make([]Output, len(addrs))
	for i, addr := range addrs {
		outputs[i] = Output{Address: addr, Value: a.cfg.CIP33Dust + int64(i)}
	}
	return outputs, nil
}

func (a *Assembler) candidateOutputs(req Request, data []Output) ([]Output, error) {
	outputs := make([]Output, 0, len(req.LeadingOutputs)+len(data)+2)
	outputs = append(outputs, req.LeadingOutputs...)

	if req.Recipient != "" {
		value := req.RecipientValue
		if value == 0 {
			value = RecipientValue
		}
		outputs = append(outputs, Output{Address: req.Recipient, Value: value})
	}
	outputs = append(outputs, data...)

	if fee := req.ServiceFee; fee != nil && fee.Value > 0 && fee.Address != "" {
		outputs = append(outputs, Output{Address: fee.Address, Value: fee.Value})
	}

	for i, o := range outputs {
		if o.IsScript() {
			continue
		}
		if _, err := scriptForAddress(o.Address, a.params); err != nil {
			return nil, fmt.Errorf("%w: output %d: %v", ErrInvalidOutput, i, err)
		}
	}

	changeAddr, err := decodeAddress(req.ChangeAddress, a.params)
	if err != nil {
		return nil, fmt.Errorf("%w: change: %v", ErrInvalidOutput, err)
	}
	if addressType(changeAddr) == AddressTypeP2SH {
		if _, err := NestedWitnessRedeemScript(req.PublicKey, a.params); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

type resolvedInput struct {
	witnessUtxo    *wire.TxOut
	nonWitnessUtxo *wire.MsgTx
}

// Assemble builds the unsigned transaction for req.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*UnsignedTx, error) {
	plan, err := a.Plan(req)
	if err != nil {
		return nil, err
	}

	inputs := plan.Selection.Inputs
	resolved, err := a.resolveInputs(ctx, inputs)
	if err != nil {
		return nil, stageErr(StageResolvingInputs, err)
	}

	packet, err := a.buildPacket(req, plan, resolved)
	if err != nil {
		return nil, stageErr(StageAssembling, err)
	}

	a.logger.Debug("transaction assembled", "inputs", len(inputs), "outputs", len(packet.UnsignedTx.TxOut),
		"data_outputs", plan.DataOutputs, "fee", plan.Fee, "change", plan.Change)

	return &UnsignedTx{Plan: *plan, Packet: packet}, nil
}

// resolveInputs looks up every input concurrently. Results are indexed by
// input position so the final order never depends on completion order.
func (a *Assembler) resolveInputs(ctx context.Context, inputs []UTXO) ([]resolvedInput, error) {
	if a.lookup == nil {
		return nil, fmt.Errorf("no transaction lookup configured")
	}

	resolved := make([]resolvedInput, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, u := range inputs {
		g.Go(func() error {
			prev, err := a.lookup.GetTransaction(gctx, u.TxID)
			if err != nil {
				return fmt.Errorf("input %d (%s:%d): %w", i, u.TxID, u.Vout, err)
			}
			r, err := resolveInput(u, prev)
			if err != nil {
				return fmt.Errorf("input %d (%s:%d): %w", i, u.TxID, u.Vout, err)
			}
			resolved[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

func resolveInput(u UTXO, prev *PrevTx) (resolvedInput, error) {
	if prev == nil || int(u.Vout) >= len(prev.Outputs) {
		return resolvedInput{}, fmt.Errorf("%w: output %d not found", ErrPrevOutMismatch, u.Vout)
	}
	out := prev.Outputs[u.Vout]
	if out.Value != u.Value {
		return resolvedInput{}, fmt.Errorf("%w: value %d, UTXO says %d", ErrPrevOutMismatch, out.Value, u.Value)
	}

	if IsWitnessType(out.ScriptType) {
		return resolvedInput{witnessUtxo: wire.NewTxOut(u.Value, out.Script)}, nil
	}

	raw, err := hex.DecodeString(prev.Hex)
	if err != nil {
		return resolvedInput{}, fmt.Errorf("%w: invalid transaction hex: %v", ErrPrevOutMismatch, err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return resolvedInput{}, fmt.Errorf("%w: failed to decode transaction: %v", ErrPrevOutMismatch, err)
	}
	if got := tx.TxHash().String(); got != u.TxID {
		return resolvedInput{}, fmt.Errorf("%w: transaction hashes to %s", ErrPrevOutMismatch, got)
	}
	return resolvedInput{nonWitnessUtxo: tx}, nil
}

func (a *Assembler) buildPacket(req Request, plan *Plan, resolved []resolvedInput) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(TxVersion)

	// Add inputs with RBF-enabled sequence number (BIP125)
	for _, u := range plan.Selection.Inputs {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %s: %w", u.TxID, err)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(txHash, u.Vout), nil, nil)
		txIn.Sequence = SequenceRBF
		tx.AddTxIn(txIn)
	}

	for _, o := range plan.Outputs {
		script := o.Script
		if !o.IsScript() {
			var err error
			if script, err = scriptForAddress(o.Address, a.params); err != nil {
				return nil, err
			}
		}
		tx.AddTxOut(wire.NewTxOut(o.Value, script))
	}

	changeScript, err := scriptForAddress(req.ChangeAddress, a.params)
	if err != nil {
		return nil, err
	}
	if plan.Change > 0 {
		tx.AddTxOut(wire.NewTxOut(plan.Change, changeScript))
	}

	var redeemScript []byte
	if txscript.IsPayToScriptHash(changeScript) {
		if redeemScript, err = NestedWitnessRedeemScript(req.PublicKey, a.params); err != nil {
			return nil, err
		}
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to create PSBT: %w", err)
	}
	for i, r := range resolved {
		packet.Inputs[i].WitnessUtxo = r.witnessUtxo
		packet.Inputs[i].NonWitnessUtxo = r.nonWitnessUtxo
		packet.Inputs[i].RedeemScript = redeemScript
	}
	return packet, nil
}
