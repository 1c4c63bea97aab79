package stamps

import (
	"context"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/src20"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

func pathSRC20(b *stampsBackend) []*framework.Path {
	tick := &framework.FieldSchema{
		Type:        framework.TypeString,
		Description: "Token ticker, 1 to 5 characters",
		Required:    true,
	}
	amt := &framework.FieldSchema{
		Type:        framework.TypeString,
		Description: "Decimal token amount",
		Required:    true,
	}

	return []*framework.Path{
		{
			Pattern: "src20/deploy",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: withBuildFields(map[string]*framework.FieldSchema{
				"tick": tick,
				"max": {
					Type:        framework.TypeString,
					Description: "Maximum token supply",
					Required:    true,
				},
				"lim": {
					Type:        framework.TypeString,
					Description: "Maximum amount per mint",
					Required:    true,
				},
				"dec": {
					Type:        framework.TypeInt,
					Description: "Token decimals, 1 to 18 (default: 18)",
				},
			}),
			Operations:      buildOperations(b.pathSRC20Deploy, "src20-deploy"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathSRC20DeployHelpSynopsis,
			HelpDescription: pathSRC20HelpDescription,
		},
		{
			Pattern: "src20/mint",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: withBuildFields(map[string]*framework.FieldSchema{
				"tick": tick,
				"amt":  amt,
			}),
			Operations:      buildOperations(b.pathSRC20Mint, "src20-mint"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathSRC20MintHelpSynopsis,
			HelpDescription: pathSRC20HelpDescription,
		},
		{
			Pattern: "src20/transfer",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: withBuildFields(map[string]*framework.FieldSchema{
				"tick": tick,
				"amt":  amt,
				"to_address": {
					Type:        framework.TypeString,
					Description: "Address receiving the tokens",
					Required:    true,
				},
			}),
			Operations:      buildOperations(b.pathSRC20Transfer, "src20-transfer"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathSRC20TransferHelpSynopsis,
			HelpDescription: pathSRC20HelpDescription,
		},
	}
}

// buildOperations registers callback for create and update.
func buildOperations(callback framework.OperationFunc, suffix string) map[logical.Operation]framework.OperationHandler {
	return map[logical.Operation]framework.OperationHandler{
		logical.UpdateOperation: &framework.PathOperation{
			Callback: callback,
			DisplayAttrs: &framework.DisplayAttributes{
				OperationSuffix: suffix,
			},
		},
		logical.CreateOperation: &framework.PathOperation{
			Callback: callback,
			DisplayAttrs: &framework.DisplayAttributes{
				OperationSuffix: suffix,
			},
		},
	}
}

func (b *stampsBackend) pathBuildExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	return false, nil
}

func (b *stampsBackend) pathSRC20Deploy(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	op := src20.Deploy{
		Tick: data.Get("tick").(string),
		Max:  data.Get("max").(string),
		Lim:  data.Get("lim").(string),
	}
	if dec, ok := data.GetOk("dec"); ok {
		d := dec.(int)
		op.Dec = &d
	}
	return b.buildSRC20(ctx, req, data, op, "")
}

func (b *stampsBackend) pathSRC20Mint(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	op := src20.Mint{
		Tick: data.Get("tick").(string),
		Amt:  data.Get("amt").(string),
	}
	return b.buildSRC20(ctx, req, data, op, "")
}

func (b *stampsBackend) pathSRC20Transfer(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	to := data.Get("to_address").(string)
	if to == "" {
		return logical.ErrorResponse("to_address is required"), nil
	}
	op := src20.Transfer{
		Tick: data.Get("tick").(string),
		Amt:  data.Get("amt").(string),
	}
	return b.buildSRC20(ctx, req, data, op, to)
}

// buildSRC20 builds the multisig transaction carrying op. The recipient
// output goes to the source address unless recipient is set.
func (b *stampsBackend) buildSRC20(ctx context.Context, req *logical.Request, data *framework.FieldData, op src20.Operation, recipient string) (*logical.Response, error) {
	text, err := src20.Text(op)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	params, err := parseBuildParams(data)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}
	if recipient == "" {
		recipient = params.source
	}

	msg := op.Message()
	b.Logger().Debug("SRC-20 build request", "op", msg.Op, "tick", msg.Tick, "source", params.source, "fee_rate", params.feeRate)

	bc, err := b.prepare(ctx, req.Storage, params)
	if err != nil {
		return errorResponse(err)
	}
	bc.request.Payload = text
	bc.request.Encoding = txbuilder.EncodingMultisig
	bc.request.Recipient = recipient

	resp, err := b.assemble(ctx, "src20", bc)
	if err != nil || resp.IsError() {
		return resp, err
	}
	resp.Data["payload"] = string(text)
	return resp, nil
}

const pathSRC20DeployHelpSynopsis = `
Build an unsigned SRC-20 deploy transaction.
`

const pathSRC20MintHelpSynopsis = `
Build an unsigned SRC-20 mint transaction.
`

const pathSRC20TransferHelpSynopsis = `
Build an unsigned SRC-20 transfer transaction.
`

const pathSRC20HelpDescription = `
These endpoints build SRC-20 token transactions. The token message is
compressed when that makes it shorter, scrambled with the txid of the
largest source UTXO, and split across bare 1-of-3 multisig outputs of 777
sats each. The recipient receives 789 sats ahead of the data outputs, the
configured service fee follows them, and change returns to change_address.

The fee rate is estimated by the configured data source unless fee_rate is
given. Inputs spending segwit outputs carry witness UTXO data, all others
carry the full previous transaction.

Example:
  $ vault write stamps/src20/deploy source_address=bc1q... \
      tick=KEVIN max=21000000 lim=1000 dec=8

  $ vault write stamps/src20/mint source_address=bc1q... tick=KEVIN amt=1000

  $ vault write stamps/src20/transfer source_address=bc1q... \
      to_address=bc1q... tick=KEVIN amt=50 fee_rate=12

Response:
  - psbt: Base64-encoded PSBT to sign
  - psbt_hex: Hex-encoded PSBT
  - txid: Id of the unsigned transaction
  - fee, change: Final fee and change in satoshis
  - inputs: Selected UTXOs
  - payload: The stamp text that was embedded
`
