package stamps

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

func pathUTXOs(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "utxos/" + framework.GenericNameRegex("address"),
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Fields: map[string]*framework.FieldSchema{
				"address": {
					Type:        framework.TypeString,
					Description: "Address to list",
					Required:    true,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathUTXOsRead,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "utxos",
					},
				},
			},
			HelpSynopsis:    pathUTXOsHelpSynopsis,
			HelpDescription: pathUTXOsHelpDescription,
		},
	}
}

// UTXODetail represents UTXO data returned to the user
type UTXODetail struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Value     int64  `json:"value"`
	InputSize int    `json:"input_size"`
	SizeKnown bool   `json:"size_known"`
}

func (b *stampsBackend) pathUTXOsRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	address := data.Get("address").(string)

	b.Logger().Debug("reading UTXOs", "address", address)

	config, err := getConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}
	if err := txbuilder.ValidateAddress(address, config.Network); err != nil {
		return logical.ErrorResponse(err.Error()), nil
	}

	provider, err := b.getProvider(ctx, req.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data source: %w", err)
	}

	utxos, err := provider.ListUnspent(ctx, address)
	if err != nil {
		return errorResponse(err)
	}

	details := make([]UTXODetail, 0, len(utxos))
	var totalValue int64
	for _, u := range txbuilder.SortUTXOs(utxos) {
		size, known := u.InputSize()
		details = append(details, UTXODetail{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     u.Value,
			InputSize: size,
			SizeKnown: known,
		})
		totalValue += u.Value
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"address":           address,
			"utxos":             details,
			"count":             len(details),
			"total_value":       totalValue,
			"min_confirmations": config.MinConfirmations,
		},
	}, nil
}

const pathUTXOsHelpSynopsis = `
List the spendable UTXOs of an address.
`

const pathUTXOsHelpDescription = `
This endpoint lists the UTXOs of an address with at least min_confirmations
confirmations, largest first, the order coin selection uses. Each UTXO
carries the input size used for fee estimation; size_known is false when
the locking script matched no known pattern.

Example:
  $ vault read stamps/utxos/bc1q...
`
