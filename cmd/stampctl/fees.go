package main

import (
	"github.com/spf13/cobra"

	"github.com/stampchain-io/vault-plugin-stamps/chain"
)

func newFeesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fees",
		Short: "Print the current fee rate estimate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rate, err := s.provider.FeeRate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"fee_rate":      rate,
				"target_blocks": chain.FeeTargetBlocks,
				"backend":       opts.Backend,
				"network":       s.provider.Network(),
			})
		},
	}
}
