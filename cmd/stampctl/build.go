package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

// buildFlags are shared by every command that builds a transaction.
type buildFlags struct {
	Source    string
	Change    string
	PublicKey string
	FeeRate   int64
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Source, "source", "s", "", "Address funding the transaction")
	cmd.Flags().StringVar(&f.Change, "change", "", "Change address (default: source)")
	cmd.Flags().StringVar(&f.PublicKey, "public-key", "", "Hex compressed public key of a P2SH-P2WPKH change address")
	cmd.Flags().Int64Var(&f.FeeRate, "fee-rate", 0, "Fee rate in sat/vB (default: estimate)")
	cmd.MarkFlagRequired("source")
}

// buildResult is printed after a successful build.
type buildResult struct {
	PSBT        string           `json:"psbt"`
	TxID        string           `json:"txid"`
	Inputs      []txbuilder.UTXO `json:"inputs"`
	DataOutputs int              `json:"data_outputs"`
	Fee         int64            `json:"fee"`
	Change      int64            `json:"change"`
	FeeRate     int64            `json:"fee_rate"`
	Payload     string           `json:"payload,omitempty"`
}

// build fills a request from the source address and runs fill to add the
// payload before assembling it.
func (o *options) build(cmd *cobra.Command, f *buildFlags, fill func(req *txbuilder.Request) error) (*buildResult, error) {
	ctx := cmd.Context()

	if err := txbuilder.ValidateAddress(f.Source, o.Network); err != nil {
		return nil, fmt.Errorf("%w: source: %v", txbuilder.ErrInvalidOutput, err)
	}

	s, err := o.open(cmd)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	req := txbuilder.Request{
		ChangeAddress: f.Change,
		FeeRate:       f.FeeRate,
	}
	if req.ChangeAddress == "" {
		req.ChangeAddress = f.Source
	}
	if f.PublicKey != "" {
		if req.PublicKey, err = hex.DecodeString(f.PublicKey); err != nil {
			return nil, fmt.Errorf("invalid public key: %w", err)
		}
	}
	if req.ServiceFee, err = o.serviceFee(); err != nil {
		return nil, err
	}

	if req.FeeRate == 0 {
		if req.FeeRate, err = s.provider.FeeRate(ctx); err != nil {
			return nil, fmt.Errorf("failed to estimate fee rate: %w", err)
		}
		s.logger.Info("using estimated fee rate", "fee_rate", req.FeeRate)
	}
	if err := txbuilder.ValidateFeeRate(req.FeeRate); err != nil {
		return nil, err
	}

	if req.UTXOs, err = s.provider.ListUnspent(ctx, f.Source); err != nil {
		return nil, fmt.Errorf("failed to list UTXOs: %w", err)
	}
	if err := fill(&req); err != nil {
		return nil, err
	}

	asm, err := o.assembler(s.provider, s.logger)
	if err != nil {
		return nil, err
	}
	tx, err := asm.Assemble(ctx, req)
	if err != nil {
		return nil, err
	}

	b64, err := tx.B64()
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction built", "txid", tx.TxID(), "fee", tx.Fee, "change", tx.Change)

	return &buildResult{
		PSBT:        b64,
		TxID:        tx.TxID(),
		Inputs:      tx.Selection.Inputs,
		DataOutputs: tx.DataOutputs,
		Fee:         tx.Fee,
		Change:      tx.Change,
		FeeRate:     req.FeeRate,
	}, nil
}
