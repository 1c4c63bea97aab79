package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/stampchain-io/vault-plugin-stamps/cip33"
)

func newCIP33Cmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cip33",
		Short: "Encode and decode CIP33 P2WSH addresses",
	}
	cmd.AddCommand(newCIP33EncodeCmd(opts), newCIP33DecodeCmd())
	return cmd
}

func newCIP33EncodeCmd(opts *options) *cobra.Command {
	var (
		hexData string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "encode [text]",
		Short: "Encode text, hex or a file as CIP33 addresses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				payload []byte
				err     error
			)
			switch {
			case file != "":
				if payload, err = os.ReadFile(file); err != nil {
					return err
				}
			case hexData != "":
				if payload, err = hex.DecodeString(hexData); err != nil {
					return fmt.Errorf("invalid hex: %w", err)
				}
			case len(args) == 1:
				payload = []byte(args[0])
			default:
				return fmt.Errorf("one of text, --hex or --file is required")
			}

			addrs, err := cip33.Encode(payload, opts.Network)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hexData, "hex", "", "Hex-encoded data")
	cmd.Flags().StringVarP(&file, "file", "f", "", "File to encode")
	return cmd
}

func newCIP33DecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode address...",
		Short: "Decode CIP33 addresses given in output order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := cip33.Decode(args)
			if err != nil {
				return err
			}
			out := map[string]string{
				"data": base64.StdEncoding.EncodeToString(payload),
				"hex":  hex.EncodeToString(payload),
			}
			if utf8.Valid(payload) {
				out["text"] = string(payload)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
