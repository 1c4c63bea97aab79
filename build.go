package stamps

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

// buildFields are accepted by every path that builds a transaction.
func buildFields() map[string]*framework.FieldSchema {
	return map[string]*framework.FieldSchema{
		"source_address": {
			Type:        framework.TypeString,
			Description: "Address funding the transaction",
			Required:    true,
		},
		"change_address": {
			Type:        framework.TypeString,
			Description: "Address receiving change (default: source_address)",
		},
		"public_key": {
			Type:        framework.TypeString,
			Description: "Hex compressed public key of a P2SH-P2WPKH change address",
		},
		"fee_rate": {
			Type:        framework.TypeInt,
			Description: "Fee rate in satoshis per vbyte (default: estimate from the data source)",
			Default:     0,
		},
	}
}

// withBuildFields merges extra into the common build fields.
func withBuildFields(extra map[string]*framework.FieldSchema) map[string]*framework.FieldSchema {
	fields := buildFields()
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// buildParams holds the parsed common build fields.
type buildParams struct {
	source    string
	change    string
	publicKey []byte
	feeRate   int64
}

func parseBuildParams(data *framework.FieldData) (*buildParams, error) {
	p := &buildParams{
		source:  data.Get("source_address").(string),
		change:  data.Get("change_address").(string),
		feeRate: int64(data.Get("fee_rate").(int)),
	}
	if p.source == "" {
		return nil, fmt.Errorf("source_address is required")
	}
	if p.change == "" {
		p.change = p.source
	}
	if p.feeRate < 0 {
		return nil, fmt.Errorf("fee_rate must be positive")
	}
	if pk := data.Get("public_key").(string); pk != "" {
		key, err := hex.DecodeString(pk)
		if err != nil {
			return nil, fmt.Errorf("invalid public_key: %v", err)
		}
		p.publicKey = key
	}
	return p, nil
}

// buildContext is everything a build needs besides the payload.
type buildContext struct {
	config    *stampsConfig
	assembler *txbuilder.Assembler
	request   txbuilder.Request
}

// prepare loads the configuration, lists the source UTXOs and settles the
// fee rate. The returned request lacks only the payload specific fields.
func (b *stampsBackend) prepare(ctx context.Context, s logical.Storage, p *buildParams) (*buildContext, error) {
	config, err := getConfig(ctx, s)
	if err != nil {
		return nil, err
	}

	if err := txbuilder.ValidateAddress(p.source, config.Network); err != nil {
		return nil, fmt.Errorf("%w: source_address: %v", txbuilder.ErrInvalidOutput, err)
	}

	provider, err := b.getProvider(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data source: %w", err)
	}

	feeRate := p.feeRate
	if feeRate == 0 {
		if feeRate, err = provider.FeeRate(ctx); err != nil {
			return nil, fmt.Errorf("failed to estimate fee rate: %w", err)
		}
		b.Logger().Debug("using estimated fee rate", "fee_rate", feeRate)
	}
	if err := txbuilder.ValidateFeeRate(feeRate); err != nil {
		return nil, err
	}

	utxos, err := provider.ListUnspent(ctx, p.source)
	if err != nil {
		return nil, fmt.Errorf("failed to list UTXOs: %w", err)
	}

	asm, err := b.newAssembler(config, provider)
	if err != nil {
		return nil, err
	}

	return &buildContext{
		config:    config,
		assembler: asm,
		request: txbuilder.Request{
			UTXOs:         utxos,
			ServiceFee:    config.serviceFee(),
			ChangeAddress: p.change,
			PublicKey:     p.publicKey,
			FeeRate:       feeRate,
		},
	}, nil
}

// assemble runs a prepared request and formats the unsigned transaction.
func (b *stampsBackend) assemble(ctx context.Context, kind string, bc *buildContext) (*logical.Response, error) {
	start := time.Now()
	tx, err := bc.assembler.Assemble(ctx, bc.request)
	if err != nil {
		b.Logger().Debug("transaction build failed", "kind", kind, "error", err)
		return errorResponse(err)
	}
	measureBuild(kind, start)

	b64, err := tx.B64()
	if err != nil {
		return nil, err
	}
	psbtHex, err := tx.Hex()
	if err != nil {
		return nil, err
	}

	resp := planData(&tx.Plan, bc.request.FeeRate)
	resp["psbt"] = b64
	resp["psbt_hex"] = psbtHex
	resp["txid"] = tx.TxID()

	b.Logger().Info("transaction built", "kind", kind, "txid", tx.TxID(), "inputs", len(tx.Selection.Inputs),
		"fee", tx.Fee, "change", tx.Change)
	return &logical.Response{Data: resp}, nil
}

// planData describes a plan for a response.
func planData(plan *txbuilder.Plan, feeRate int64) map[string]interface{} {
	inputs := make([]map[string]interface{}, len(plan.Selection.Inputs))
	var totalIn int64
	for i, u := range plan.Selection.Inputs {
		inputs[i] = map[string]interface{}{
			"txid":  u.TxID,
			"vout":  u.Vout,
			"value": u.Value,
		}
		totalIn += u.Value
	}

	data := map[string]interface{}{
		"inputs":             inputs,
		"input_total":        totalIn,
		"output_count":       len(plan.Outputs),
		"data_outputs":       plan.DataOutputs,
		"fee":                plan.Fee,
		"change":             plan.Change,
		"fee_rate":           feeRate,
		"effective_fee_rate": plan.Selection.FeeRate,
	}
	if plan.Selection.UnknownInputs > 0 {
		data["warning"] = fmt.Sprintf("%d inputs have unrecognized scripts, fee may be underestimated", plan.Selection.UnknownInputs)
	}
	return data
}
