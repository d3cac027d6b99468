package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// SummarizeTransaction extracts the fee payer, programs and native transfers
// from a decoded transaction. Instructions that reference accounts through
// address lookup tables are counted but not resolved.
func SummarizeTransaction(tx *solana.Transaction) *TransactionSummary {
	msg := tx.Message
	summary := &TransactionSummary{
		Blockhash:          msg.RecentBlockhash.String(),
		Versioned:          msg.IsVersioned(),
		InstructionCount:   len(msg.Instructions),
		RequiredSignatures: int(msg.Header.NumRequiredSignatures),
		Programs:           []string{},
		Transfers:          []TransferSummary{},
	}
	if len(msg.AccountKeys) > 0 {
		summary.FeePayer = msg.AccountKeys[0].String()
	}

	accountKeys := msg.AccountKeys
	seen := make(map[solana.PublicKey]struct{})
	for _, instruction := range msg.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			continue
		}
		programID := accountKeys[instruction.ProgramIDIndex]
		if _, ok := seen[programID]; !ok {
			seen[programID] = struct{}{}
			summary.Programs = append(summary.Programs, programID.String())
		}

		if programID.Equals(solana.ComputeBudget) {
			summary.HasComputeBudget = true
		}

		// Parse System Program transfers (native SOL)
		if programID.Equals(solana.SystemProgramID) {
			if transfer, err := parseSystemTransfer(instruction, accountKeys); err == nil {
				summary.Transfers = append(summary.Transfers, *transfer)
			}
		}
	}

	return summary
}

// parseSystemTransfer extracts the source, destination and amount from a System Program Transfer instruction.
func parseSystemTransfer(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (*TransferSummary, error) {
	// System Transfer instruction format:
	// [0..4]  = instruction type (u32, should be 2 for Transfer)
	// [4..12] = lamports (u64)

	if len(instruction.Data) < 12 {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(instruction.Data))
	}

	// Check instruction type
	instructionType := binary.LittleEndian.Uint32(instruction.Data[0:4])
	if instructionType != SystemProgramTransferInstruction {
		return nil, fmt.Errorf("not a transfer instruction: type %d", instructionType)
	}

	// System Transfer accounts: [from, to]
	if len(instruction.Accounts) < 2 {
		return nil, fmt.Errorf("transfer missing accounts")
	}
	fromIndex, toIndex := int(instruction.Accounts[0]), int(instruction.Accounts[1])
	if fromIndex >= len(accountKeys) || toIndex >= len(accountKeys) {
		return nil, fmt.Errorf("transfer account index out of bounds")
	}

	return &TransferSummary{
		From:     accountKeys[fromIndex].String(),
		To:       accountKeys[toIndex].String(),
		Lamports: binary.LittleEndian.Uint64(instruction.Data[4:12]),
	}, nil
}
