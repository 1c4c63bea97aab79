package stamps

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

func pathStamp(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "stamp",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: withBuildFields(map[string]*framework.FieldSchema{
				"file": {
					Type:        framework.TypeString,
					Description: "Base64-encoded file content",
					Required:    true,
				},
				"issuance_hex": {
					Type:        framework.TypeString,
					Description: "Hex of an asset issuance transaction whose outputs lead the stamp outputs",
				},
			}),
			Operations:      buildOperations(b.pathStampWrite, "stamp"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathStampHelpSynopsis,
			HelpDescription: pathStampHelpDescription,
		},
	}
}

func (b *stampsBackend) pathStampWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	file, err := base64.StdEncoding.DecodeString(data.Get("file").(string))
	if err != nil {
		return logical.ErrorResponse("invalid file: not base64: %s", err.Error()), nil
	}
	if len(file) == 0 {
		return logical.ErrorResponse("file is required"), nil
	}

	params, err := parseBuildParams(data)
	if err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	var issuance *wire.MsgTx
	if issuanceHex := data.Get("issuance_hex").(string); issuanceHex != "" {
		if issuance, err = decodeTxHex(issuanceHex); err != nil {
			return logical.ErrorResponse("invalid issuance_hex: %s", err.Error()), nil
		}
	}

	b.Logger().Debug("stamp build request", "source", params.source, "file_size", len(file), "issuance", issuance != nil)

	bc, err := b.prepare(ctx, req.Storage, params)
	if err != nil {
		return errorResponse(err)
	}

	if issuance != nil {
		chainParams, err := network.Params(bc.config.Network)
		if err != nil {
			return nil, err
		}
		// The issuance pays its own change back to the source; that value
		// is covered by the new change output instead.
		bc.request.LeadingOutputs = txbuilder.ExtractOutputs(issuance, params.source, chainParams)
	}
	bc.request.Payload = file
	bc.request.Encoding = txbuilder.EncodingCIP33

	return b.assemble(ctx, "stamp", bc)
}

func decodeTxHex(s string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

const pathStampHelpSynopsis = `
Build an unsigned CIP33 file stamp transaction.
`

const pathStampHelpDescription = `
This endpoint stores a file in P2WSH outputs using the CIP33 address
encoding. Each output carries 32 bytes of the length-prefixed file and is
worth 330 sats plus its index.

When issuance_hex is given, the outputs of that transaction (typically an
asset issuance built by a token API) are placed first, except those paying
back to source_address. The service fee and change follow the data
outputs.

Example:
  $ vault write stamps/stamp source_address=bc1q... file=@image.b64

  $ vault write stamps/stamp source_address=bc1q... \
      file="$(base64 -w0 image.png)" issuance_hex=0200... fee_rate=20

Response:
  - psbt: Base64-encoded PSBT to sign
  - psbt_hex: Hex-encoded PSBT
  - txid: Id of the unsigned transaction
  - fee, change: Final fee and change in satoshis
  - data_outputs: Number of CIP33 outputs
`
