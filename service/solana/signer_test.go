package solana

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liveBlockhash = solana.HashFromBytes(bytes.Repeat([]byte{7}, 32))

// gatewayRebuild mimics what the gateway does with an unsigned transaction:
// it swaps the placeholder blockhash for a live one and returns new wire bytes.
func gatewayRebuild(t *testing.T, unsignedB64 string) string {
	t.Helper()
	tx, err := DecodeTransaction(unsignedB64)
	require.NoError(t, err)
	tx.Message.RecentBlockhash = liveBlockhash
	tx.Signatures = nil
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func buildUnsigned(t *testing.T, payer solana.PublicKey) string {
	t.Helper()
	recipient := newTestKey(t).PublicKey()
	out, err := BuildTransfer(TransferParams{FeePayer: payer, Recipient: &recipient, Network: Devnet})
	require.NoError(t, err)
	b64, err := out.Base64()
	require.NoError(t, err)
	return b64
}

func TestSignBuiltTransaction_Success(t *testing.T) {
	key := newTestKey(t)
	built := gatewayRebuild(t, buildUnsigned(t, key.PublicKey()))

	signed, err := SignBuiltTransaction(built, key)
	require.NoError(t, err)

	require.Len(t, signed.Tx.Signatures, 1)
	assert.False(t, signed.Signature.IsZero())
	assert.Empty(t, signed.MissingSigners)
	assert.Equal(t, liveBlockhash, signed.Tx.Message.RecentBlockhash)

	// The wire bytes must carry a fully verifiable transaction.
	decoded, err := DecodeTransaction(signed.Base64)
	require.NoError(t, err)
	require.NoError(t, decoded.VerifySignatures())
	assert.Equal(t, signed.Signature, decoded.Signatures[0])
}

func TestSignBuiltTransaction_Idempotent(t *testing.T) {
	key := newTestKey(t)
	built := gatewayRebuild(t, buildUnsigned(t, key.PublicKey()))

	first, err := SignBuiltTransaction(built, key)
	require.NoError(t, err)
	second, err := SignBuiltTransaction(first.Base64, key)
	require.NoError(t, err)

	assert.Len(t, second.Tx.Signatures, 1, "re-signing must not add a signature slot")
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.Base64, second.Base64)
}

func TestSignBuiltTransaction_PartialSignLeavesOtherSigners(t *testing.T) {
	key := newTestKey(t)
	cosigner := newTestKey(t)
	recipient := newTestKey(t).PublicKey()

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(system.NewTransferInstruction(1000, key.PublicKey(), recipient).Build()).
		AddInstruction(system.NewTransferInstruction(2000, cosigner.PublicKey(), recipient).Build()).
		SetRecentBlockHash(liveBlockhash).
		SetFeePayer(key.PublicKey()).
		Build()
	require.NoError(t, err)
	built, err := tx.ToBase64()
	require.NoError(t, err)

	signed, err := SignBuiltTransaction(built, key)
	require.NoError(t, err)

	require.Len(t, signed.Tx.Signatures, 2)
	assert.False(t, signed.Tx.Signatures[0].IsZero())
	assert.True(t, signed.Tx.Signatures[1].IsZero())
	assert.Equal(t, []solana.PublicKey{cosigner.PublicKey()}, signed.MissingSigners)
}

func TestSignBuiltTransaction_Malformed(t *testing.T) {
	key := newTestKey(t)
	valid := gatewayRebuild(t, buildUnsigned(t, key.PublicKey()))
	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "%%%not-base64%%%"},
		{name: "empty payload", input: ""},
		{name: "truncated bytes", input: base64.StdEncoding.EncodeToString(raw[:len(raw)/2])},
		{name: "trailing bytes", input: base64.StdEncoding.EncodeToString(append(append([]byte{}, raw...), 0xff, 0xff))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := SignBuiltTransaction(tt.input, key)
			require.Error(t, err)
			assert.Nil(t, signed)
			assert.ErrorIs(t, err, ErrMalformedTransaction)
		})
	}
}

func TestSignBuiltTransaction_WrongFeePayer(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	built := gatewayRebuild(t, buildUnsigned(t, other.PublicKey()))

	_, err := SignBuiltTransaction(built, key)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
	assert.Contains(t, err.Error(), "fee payer")
}
