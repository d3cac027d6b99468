package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// PlaceholderBlockhash is the stale block reference put on unsigned transactions.
// The gateway replaces it with a live blockhash during buildGatewayTransaction;
// the builder never fetches one itself.
var PlaceholderBlockhash = solana.MustHashFromBase58("11111111111111111111111111111111")

// TransferParams describes the transfer to build.
type TransferParams struct {
	FeePayer  solana.PublicKey
	Recipient *solana.PublicKey // nil generates a throwaway recipient
	Network   Network
	Lamports  uint64 // zero selects TransferLamports(Network)
	Tip       *Tip   // nil or zero lamports means no tip instruction
}

// UnsignedTransaction is a transfer waiting for the gateway to fill in a live
// blockhash. Its signature slots are empty.
type UnsignedTransaction struct {
	Tx          *solana.Transaction
	Recipient   solana.PublicKey
	Lamports    uint64
	TipLamports uint64
}

// BuildTransfer assembles an unsigned SOL transfer, with an optional tip
// transfer appended. The fee payer funds both transfers.
func BuildTransfer(params TransferParams) (*UnsignedTransaction, error) {
	if params.FeePayer.IsZero() {
		return nil, fmt.Errorf("fee payer is required")
	}

	lamports := params.Lamports
	if lamports == 0 {
		lamports = TransferLamports(params.Network)
	}

	var recipient solana.PublicKey
	if params.Recipient != nil {
		recipient = *params.Recipient
	} else {
		// Throwaway destination for demo runs; the funds are unrecoverable.
		throwaway, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generate throwaway recipient: %w", err)
		}
		recipient = throwaway.PublicKey()
	}

	builder := solana.NewTransactionBuilder().
		AddInstruction(system.NewTransferInstruction(lamports, params.FeePayer, recipient).Build()).
		SetRecentBlockHash(PlaceholderBlockhash).
		SetFeePayer(params.FeePayer)

	out := &UnsignedTransaction{
		Recipient: recipient,
		Lamports:  lamports,
	}

	if params.Tip != nil && params.Tip.Lamports > 0 && !params.Tip.Recipient.IsZero() {
		builder.AddInstruction(system.NewTransferInstruction(params.Tip.Lamports, params.FeePayer, params.Tip.Recipient).Build())
		out.TipLamports = params.Tip.Lamports
	}

	tx, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build transfer transaction: %w", err)
	}
	out.Tx = tx

	return out, nil
}

// Base64 serializes the transaction with its signature slots unpopulated.
// Nothing is verified: the bytes are meant for the gateway to complete.
func (u *UnsignedTransaction) Base64() (string, error) {
	raw, err := u.Tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize unsigned transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
