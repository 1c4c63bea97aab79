package main

import (
	"github.com/spf13/cobra"

	"github.com/stampchain-io/vault-plugin-stamps/src20"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

func newSRC20Cmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "src20",
		Short: "Build SRC-20 token transactions",
	}
	cmd.AddCommand(
		newSRC20DeployCmd(opts),
		newSRC20MintCmd(opts),
		newSRC20TransferCmd(opts),
	)
	return cmd
}

func newSRC20DeployCmd(opts *options) *cobra.Command {
	var (
		bf  buildFlags
		op  src20.Deploy
		dec int
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dec") {
				op.Dec = &dec
			}
			return opts.runSRC20(cmd, &bf, op, "")
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVar(&op.Tick, "tick", "", "Token ticker")
	cmd.Flags().StringVar(&op.Max, "max", "", "Maximum supply")
	cmd.Flags().StringVar(&op.Lim, "lim", "", "Maximum amount per mint")
	cmd.Flags().IntVar(&dec, "dec", 18, "Decimals")
	return cmd
}

func newSRC20MintCmd(opts *options) *cobra.Command {
	var (
		bf buildFlags
		op src20.Mint
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint tokens to the source address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSRC20(cmd, &bf, op, "")
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVar(&op.Tick, "tick", "", "Token ticker")
	cmd.Flags().StringVar(&op.Amt, "amt", "", "Amount to mint")
	return cmd
}

func newSRC20TransferCmd(opts *options) *cobra.Command {
	var (
		bf buildFlags
		op src20.Transfer
		to string
	)
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer tokens to another address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runSRC20(cmd, &bf, op, to)
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", "Address receiving the tokens")
	cmd.Flags().StringVar(&op.Tick, "tick", "", "Token ticker")
	cmd.Flags().StringVar(&op.Amt, "amt", "", "Amount to transfer")
	cmd.MarkFlagRequired("to")
	return cmd
}

// runSRC20 builds the multisig transaction carrying op. The recipient
// defaults to the source address.
func (o *options) runSRC20(cmd *cobra.Command, bf *buildFlags, op src20.Operation, recipient string) error {
	text, err := src20.Text(op)
	if err != nil {
		return err
	}
	if recipient == "" {
		recipient = bf.Source
	}

	result, err := o.build(cmd, bf, func(req *txbuilder.Request) error {
		req.Payload = text
		req.Encoding = txbuilder.EncodingMultisig
		req.Recipient = recipient
		return nil
	})
	if err != nil {
		return err
	}
	result.Payload = string(text)
	return printJSON(cmd.OutOrStdout(), result)
}
