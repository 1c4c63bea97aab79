package stamps

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"unicode/utf8"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/cip33"
)

func pathCIP33(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "cip33/encode",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: map[string]*framework.FieldSchema{
				"data": {
					Type:        framework.TypeString,
					Description: "Base64-encoded data",
				},
				"hex": {
					Type:        framework.TypeString,
					Description: "Hex-encoded data, used when data is empty",
				},
				"text": {
					Type:        framework.TypeString,
					Description: "Plain text, used when data and hex are empty",
				},
				"network": {
					Type:        framework.TypeString,
					Description: "Network for the address prefix (default: from config)",
				},
			},
			Operations:      buildOperations(b.pathCIP33Encode, "cip33-encode"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathCIP33EncodeHelpSynopsis,
			HelpDescription: pathCIP33HelpDescription,
		},
		{
			Pattern: "cip33/decode",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: map[string]*framework.FieldSchema{
				"addresses": {
					Type:        framework.TypeCommaStringSlice,
					Description: "CIP33 addresses in output order",
					Required:    true,
				},
			},
			Operations:      buildOperations(b.pathCIP33Decode, "cip33-decode"),
			ExistenceCheck:  b.pathBuildExistenceCheck,
			HelpSynopsis:    pathCIP33DecodeHelpSynopsis,
			HelpDescription: pathCIP33HelpDescription,
		},
	}
}

func (b *stampsBackend) pathCIP33Encode(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	var (
		payload []byte
		err     error
	)
	switch {
	case data.Get("data").(string) != "":
		if payload, err = base64.StdEncoding.DecodeString(data.Get("data").(string)); err != nil {
			return logical.ErrorResponse("invalid data: not base64: %s", err.Error()), nil
		}
	case data.Get("hex").(string) != "":
		if payload, err = hex.DecodeString(data.Get("hex").(string)); err != nil {
			return logical.ErrorResponse("invalid hex: %s", err.Error()), nil
		}
	default:
		payload = []byte(data.Get("text").(string))
	}
	if len(payload) == 0 {
		return logical.ErrorResponse("one of data, hex, or text is required"), nil
	}

	networkName := data.Get("network").(string)
	if networkName == "" {
		config, err := getConfig(ctx, req.Storage)
		if err != nil {
			return nil, err
		}
		networkName = config.Network
	}

	addrs, err := cip33.Encode(payload, networkName)
	if err != nil {
		return errorResponse(err)
	}

	b.Logger().Debug("encoded CIP33 addresses", "network", networkName, "bytes", len(payload), "addresses", len(addrs))
	return &logical.Response{
		Data: map[string]interface{}{
			"addresses": addrs,
			"network":   networkName,
		},
	}, nil
}

func (b *stampsBackend) pathCIP33Decode(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	addrs := data.Get("addresses").([]string)
	if len(addrs) == 0 {
		return logical.ErrorResponse("addresses is required"), nil
	}

	payload, err := cip33.Decode(addrs)
	if err != nil {
		return errorResponse(err)
	}

	respData := map[string]interface{}{
		"data": base64.StdEncoding.EncodeToString(payload),
		"hex":  hex.EncodeToString(payload),
	}
	if utf8.Valid(payload) {
		respData["text"] = string(payload)
	}
	return &logical.Response{Data: respData}, nil
}

const pathCIP33EncodeHelpSynopsis = `
Encode data as CIP33 P2WSH addresses.
`

const pathCIP33DecodeHelpSynopsis = `
Decode data from CIP33 P2WSH addresses.
`

const pathCIP33HelpDescription = `
CIP33 stores data in the 32-byte witness programs of P2WSH addresses. The
data is prefixed with its length as two big-endian bytes, split into
32-byte chunks, and the last chunk is zero padded.

These endpoints work offline and do not need a configured data source.

Example:
  $ vault write stamps/cip33/encode text=PEPE1 network=mainnet
  $ vault write stamps/cip33/decode addresses=bc1q...,bc1q...
`
