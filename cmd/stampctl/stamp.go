package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/stampchain-io/vault-plugin-stamps/network"
	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

func newStampCmd(opts *options) *cobra.Command {
	var (
		bf          buildFlags
		file        string
		issuanceHex string
	)
	cmd := &cobra.Command{
		Use:   "stamp",
		Short: "Build a CIP33 file stamp transaction",
		Long: `
Stores a file in P2WSH outputs using the CIP33 address encoding. With
--issuance-hex the outputs of that transaction lead the stamp outputs,
except those paying back to the source address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if len(payload) == 0 {
				return fmt.Errorf("%s is empty", file)
			}

			var leading []txbuilder.Output
			if issuanceHex != "" {
				issuance, err := decodeTx(issuanceHex)
				if err != nil {
					return fmt.Errorf("invalid issuance: %w", err)
				}
				params, err := network.Params(opts.Network)
				if err != nil {
					return err
				}
				leading = txbuilder.ExtractOutputs(issuance, bf.Source, params)
			}

			result, err := opts.build(cmd, &bf, func(req *txbuilder.Request) error {
				req.Payload = payload
				req.Encoding = txbuilder.EncodingCIP33
				req.LeadingOutputs = leading
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "File to stamp")
	cmd.Flags().StringVar(&issuanceHex, "issuance-hex", "", "Hex of an asset issuance transaction")
	cmd.MarkFlagRequired("file")
	return cmd
}

func decodeTx(s string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
