package solana

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SignedTransaction is a gateway-built transaction carrying the fee payer's signature.
type SignedTransaction struct {
	Tx        *solana.Transaction
	Base64    string
	Signature solana.Signature // fee payer signature, which is also the transaction id

	// MissingSigners lists required signers other than the fee payer whose
	// slots are still empty. Filling them is the gateway's job, not ours.
	MissingSigners []solana.PublicKey
}

// DecodeTransaction decodes base64 wire bytes into a transaction.
// Any failure, including trailing bytes, wraps ErrMalformedTransaction.
func DecodeTransaction(b64 string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedTransaction, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedTransaction)
	}

	decoder := bin.NewBinDecoder(raw)
	tx, err := solana.TransactionFromDecoder(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if decoder.HasRemaining() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, decoder.Remaining())
	}
	if len(tx.Message.AccountKeys) == 0 || tx.Message.Header.NumRequiredSignatures == 0 {
		return nil, fmt.Errorf("%w: no fee payer", ErrMalformedTransaction)
	}
	if int(tx.Message.Header.NumRequiredSignatures) > len(tx.Message.AccountKeys) {
		return nil, fmt.Errorf("%w: header requires %d signers but only %d accounts present",
			ErrMalformedTransaction, tx.Message.Header.NumRequiredSignatures, len(tx.Message.AccountKeys))
	}

	return tx, nil
}

// SignBuiltTransaction applies the fee payer's partial signature to a
// gateway-built transaction and re-serializes it for broadcast.
//
// Only the fee payer slot is signed. Signing the same bytes again overwrites
// that slot in place, so repeated signing never grows the signature list.
func SignBuiltTransaction(builtB64 string, key solana.PrivateKey) (*SignedTransaction, error) {
	tx, err := DecodeTransaction(builtB64)
	if err != nil {
		return nil, err
	}

	feePayer := key.PublicKey()
	if !tx.Message.AccountKeys[0].Equals(feePayer) {
		return nil, fmt.Errorf("%w: fee payer is %s, expected %s",
			ErrMalformedTransaction, tx.Message.AccountKeys[0], feePayer)
	}

	// The gateway may hand back an empty signature list; size it to the header.
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) == 0 {
		tx.Signatures = make([]solana.Signature, required)
	}

	_, err = tx.PartialSign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(feePayer) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: partial sign: %v", ErrMalformedTransaction, err)
	}

	missing, err := verifyPresentSignatures(tx)
	if err != nil {
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize signed transaction: %w", err)
	}

	return &SignedTransaction{
		Tx:             tx,
		Base64:         base64.StdEncoding.EncodeToString(raw),
		Signature:      tx.Signatures[0],
		MissingSigners: missing,
	}, nil
}

// verifyPresentSignatures checks every populated signature against the message
// and returns the signers whose slots are still empty. The fee payer slot must
// be populated.
func verifyPresentSignatures(tx *solana.Transaction) ([]solana.PublicKey, error) {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	signers := tx.Message.AccountKeys[:tx.Message.Header.NumRequiredSignatures]
	var missing []solana.PublicKey
	for i, signer := range signers {
		sig := tx.Signatures[i]
		if sig.IsZero() {
			if i == 0 {
				return nil, fmt.Errorf("fee payer signature missing after signing")
			}
			missing = append(missing, signer)
			continue
		}
		if !sig.Verify(signer, message) {
			return nil, fmt.Errorf("%w: invalid signature for %s", ErrMalformedTransaction, signer)
		}
	}
	return missing, nil
}
