package stamps

import (
	"context"
	"encoding/base64"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

func pathEstimate(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "estimate",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: withBuildFields(map[string]*framework.FieldSchema{
				"encoding": {
					Type:          framework.TypeString,
					Description:   "Payload encoding: multisig or cip33 (default: multisig)",
					Default:       string(txbuilder.EncodingMultisig),
					AllowedValues: []interface{}{string(txbuilder.EncodingMultisig), string(txbuilder.EncodingCIP33)},
				},
				"text": {
					Type:        framework.TypeString,
					Description: "Payload text, for example stamp:{\"p\":\"SRC-20\",...}",
				},
				"data": {
					Type:        framework.TypeString,
					Description: "Base64-encoded payload, used when text is empty",
				},
				"to_address": {
					Type:        framework.TypeString,
					Description: "Recipient of the 789 sat output (multisig only, default: source_address)",
				},
			}),
			Operations:      buildOperations(b.pathEstimateWrite, "estimate"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathEstimateHelpSynopsis,
			HelpDescription: pathEstimateHelpDescription,
		},
	}
}

func (b *stampsBackend) pathEstimateWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	encoding := txbuilder.Encoding(data.Get("encoding").(string))

	payload := []byte(data.Get("text").(string))
	if len(payload) == 0 {
		var err error
		if payload, err = base64.StdEncoding.DecodeString(data.Get("data").(string)); err != nil {
			return logical.ErrorResponse("invalid data: not base64: %s", err.Error()), nil
		}
	}
	if len(payload) == 0 {
		return logical.ErrorResponse("text or data is required"), nil
	}

	params, err := parseBuildParams(data)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	b.Logger().Debug("estimate request", "source", params.source, "encoding", encoding, "payload_size", len(payload))

	bc, err := b.prepare(ctx, req.Storage, params)
	if err != nil {
		return errorResponse(err)
	}
	bc.request.Payload = payload
	bc.request.Encoding = encoding
	if encoding == txbuilder.EncodingMultisig {
		bc.request.Recipient = data.Get("to_address").(string)
		if bc.request.Recipient == "" {
			bc.request.Recipient = params.source
		}
	}

	plan, err := bc.assembler.Plan(bc.request)
	if err != nil {
		return errorResponse(err)
	}

	return &logical.Response{Data: planData(plan, bc.request.FeeRate)}, nil
}

const pathEstimateHelpSynopsis = `
Estimate the fee and change of a stamp transaction.
`

const pathEstimateHelpDescription = `
This endpoint runs payload encoding and coin selection without looking up
previous transactions or building a PSBT. The multisig encoding lays out
outputs like an SRC-20 transaction; cip33 lays them out like a file stamp.

Example:
  $ vault write stamps/estimate source_address=bc1q... \
      text='stamp:{"p":"SRC-20","op":"MINT","tick":"KEVIN","amt":"1000"}'

  $ vault write stamps/estimate source_address=bc1q... encoding=cip33 \
      data="$(base64 -w0 image.png)" fee_rate=15

Response:
  - fee, change: Fee and change in satoshis
  - fee_rate: Requested fee rate
  - effective_fee_rate: Fee rate after the multisig sigops adjustment
  - inputs: UTXOs that would be spent
  - data_outputs: Number of data outputs
`
