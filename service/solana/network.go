package solana

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

// Network identifies the Solana cluster a run targets.
type Network string

const (
	Mainnet Network = "mainnet"
	Devnet  Network = "devnet"
	Testnet Network = "testnet"
)

// Transfer amounts used when the caller does not pick one.
// Mainnet spends real funds, so it moves the smaller amount.
const (
	MainnetTransferLamports uint64 = 100_000
	TestTransferLamports    uint64 = 1_000_000
)

// ParseNetwork normalizes a network name. "mainnet-beta" is accepted as an alias of mainnet.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "mainnet-beta":
		return Mainnet, nil
	case "devnet":
		return Devnet, nil
	case "testnet":
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network %q (expected mainnet, devnet or testnet)", s)
	}
}

// IsProduction reports whether transactions on this network move real funds.
func (n Network) IsProduction() bool {
	return n == Mainnet
}

// DefaultRPCURL returns the public RPC endpoint for the network.
func (n Network) DefaultRPCURL() string {
	switch n {
	case Mainnet:
		return rpc.MainNetBeta_RPC
	case Testnet:
		return rpc.TestNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

// TransferLamports returns the default transfer amount for the network.
func TransferLamports(n Network) uint64 {
	if n.IsProduction() {
		return MainnetTransferLamports
	}
	return TestTransferLamports
}
