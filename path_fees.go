package stamps

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/chain"
)

func pathFees(b *stampsBackend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "fees",
			DisplayAttrs: &framework.DisplayAttributes{
				OperationPrefix: "stamps",
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathFeesRead,
					DisplayAttrs: &framework.DisplayAttributes{
						OperationSuffix: "fees",
					},
				},
			},
			HelpSynopsis:    pathFeesHelpSynopsis,
			HelpDescription: pathFeesHelpDescription,
		},
	}
}

func (b *stampsBackend) pathFeesRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	config, err := getConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	provider, err := b.getProvider(ctx, req.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data source: %w", err)
	}

	rate, err := provider.FeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate fee rate: %w", err)
	}

	return &logical.Response{
		Data: map[string]interface{}{
			"fee_rate":      rate,
			"target_blocks": chain.FeeTargetBlocks,
			"backend":       config.Backend,
			"network":       config.Network,
		},
	}, nil
}

const pathFeesHelpSynopsis = `
Read the current fee rate estimate.
`

const pathFeesHelpDescription = `
This endpoint returns the fee rate in sat/vB that build endpoints use when
no fee_rate is given. Electrum and bitcoind estimate for confirmation
within 6 blocks; the mempool backend uses the half hour recommendation.

Example:
  $ vault read stamps/fees
`
