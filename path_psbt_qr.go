package stamps

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
	"github.com/skip2/go-qrcode"
)

// maxQRPayload is the byte capacity of a version 40 QR code at low error
// correction.
const maxQRPayload = 2953

func pathPSBTQR(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "psbt/qr",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: map[string]*framework.FieldSchema{
				"psbt": {
					Type:        framework.TypeString,
					Description: "Base64-encoded PSBT",
					Required:    true,
				},
				"size": {
					Type:        framework.TypeInt,
					Description: "QR code size in pixels (default: 512)",
					Default:     512,
				},
				"format": {
					Type:        framework.TypeString,
					Description: "Output format: 'png' (base64) or 'ascii' (default: png)",
					Default:     "png",
				},
			},
			Operations:      buildOperations(b.pathPSBTQRWrite, "psbt-qr"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathPSBTQRHelpSynopsis,
			HelpDescription: pathPSBTQRHelpDescription,
		},
	}
}

func (b *stampsBackend) pathPSBTQRWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b64 := strings.TrimSpace(data.Get("psbt").(string))
	size := data.Get("size").(int)
	format := data.Get("format").(string)

	b.Logger().Debug("PSBT QR code request", "format", format, "size", size, "length", len(b64))

	if size < 64 || size > 2048 {
		return logical.ErrorResponse("size must be between 64 and 2048"), nil
	}
	if format != "png" && format != "ascii" {
		return logical.ErrorResponse("format must be 'png' or 'ascii'"), nil
	}

	packet, err := psbt.NewFromRawBytes(strings.NewReader(b64), true)
	if err != nil {
		return logical.ErrorResponse("invalid PSBT: %s", err.Error()), nil
	}
	if len(b64) > maxQRPayload {
		return logical.ErrorResponse("PSBT is %d characters, a QR code holds at most %d", len(b64), maxQRPayload), nil
	}

	respData := map[string]interface{}{
		"txid":   packet.UnsignedTx.TxHash().String(),
		"length": len(b64),
	}

	if format == "ascii" {
		qr, err := qrcode.New(b64, qrcode.Low)
		if err != nil {
			return nil, fmt.Errorf("failed to generate QR code: %w", err)
		}
		respData["qr"] = qr.ToSmallString(false)
		respData["display_hint"] = "vault write -field=qr stamps/psbt/qr format=ascii psbt=..."
	} else {
		png, err := qrcode.Encode(b64, qrcode.Low, size)
		if err != nil {
			return nil, fmt.Errorf("failed to generate QR code: %w", err)
		}
		respData["qr_png"] = base64.StdEncoding.EncodeToString(png)
	}

	return &logical.Response{Data: respData}, nil
}

const pathPSBTQRHelpSynopsis = `
Get a QR code for a PSBT.
`

const pathPSBTQRHelpDescription = `
This endpoint renders a base64 PSBT as a QR code so an air-gapped signer
can scan it. Only PSBTs up to 2953 characters fit in a single QR code;
larger transactions must be moved as files.

Example:
  $ vault write stamps/psbt/qr psbt=cHNidP8B...
  $ vault write -field=qr stamps/psbt/qr format=ascii psbt=cHNidP8B...

Parameters:
  - size: QR code size in pixels (default: 512, range: 64-2048)
  - format: 'png' for base64-encoded PNG, 'ascii' for terminal display

Response:
  - txid: Id of the unsigned transaction
  - qr_png: Base64-encoded PNG (if format=png)
  - qr: ASCII art QR code (if format=ascii)
`
