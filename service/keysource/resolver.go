package keysource

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Source names the place a keypair came from.
type Source string

const (
	SourceInlineArray        Source = "inline-array"
	SourceInlineBase64       Source = "inline-base64"
	SourceKeypairFile        Source = "keypair-file"
	SourceDefaultKeypairFile Source = "default-keypair-file"
	SourceInsecureFallback   Source = "insecure-fallback"
)

// fallbackSeed derives the built-in key. It is public in this source tree,
// so anything it signs is spendable by anyone. Never fund it on mainnet.
var fallbackSeed = []byte("txrelay-insecure-fallback-seed!!")

// errNotConfigured marks a source that has nothing to offer. It is skipped
// without a warning.
var errNotConfigured = errors.New("source not configured")

// Keypair is the resolved signing key plus where it came from.
type Keypair struct {
	PrivateKey solana.PrivateKey
	Source     Source
}

// PublicKey returns the fee payer address.
func (k Keypair) PublicKey() solana.PublicKey {
	return k.PrivateKey.PublicKey()
}

// String returns the public key only.
func (k Keypair) String() string {
	return k.PublicKey().String()
}

// LogValue keeps the secret out of structured logs.
func (k Keypair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("public_key", k.PublicKey().String()),
		slog.String("source", string(k.Source)),
	)
}

// IsInsecure reports whether the key is the built-in fallback.
func (k Keypair) IsInsecure() bool {
	return k.Source == SourceInsecureFallback
}

// Strategy is one candidate source. Resolve returns errNotConfigured when the
// source is absent; any other error is a warning.
type Strategy struct {
	Source  Source
	Resolve func() (solana.PrivateKey, error)
}

// Options carries the configured inputs for the resolver.
type Options struct {
	Secret             string // SIGNER_SECRET: JSON byte array or base64
	KeypairPath        string // SIGNER_KEYPAIR_PATH
	DefaultKeypairPath string // empty selects DefaultKeypairPath()
}

// Resolver walks an ordered list of strategies until one yields a key.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver builds the standard strategy order: inline array, inline base64,
// configured keypair file, default CLI keypair file, built-in fallback.
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	defaultPath := opts.DefaultKeypairPath
	if defaultPath == "" {
		defaultPath = DefaultKeypairPath()
	}

	secret := strings.TrimSpace(opts.Secret)
	return &Resolver{
		logger: logger,
		strategies: []Strategy{
			{Source: SourceInlineArray, Resolve: func() (solana.PrivateKey, error) { return fromJSONArray(secret) }},
			{Source: SourceInlineBase64, Resolve: func() (solana.PrivateKey, error) { return fromBase64(secret) }},
			{Source: SourceKeypairFile, Resolve: func() (solana.PrivateKey, error) { return fromFile(opts.KeypairPath, true) }},
			{Source: SourceDefaultKeypairFile, Resolve: func() (solana.PrivateKey, error) { return fromFile(defaultPath, false) }},
		},
	}
}

// Resolve returns the first key any strategy produces. It never fails: when
// every configured source is absent or broken, the insecure fallback is used.
func (r *Resolver) Resolve() Keypair {
	for _, strategy := range r.strategies {
		key, err := strategy.Resolve()
		if errors.Is(err, errNotConfigured) {
			continue
		}
		if err != nil {
			r.logger.Warn("key source failed, trying next",
				"source", string(strategy.Source),
				"error", err,
			)
			continue
		}

		kp := Keypair{PrivateKey: key, Source: strategy.Source}
		r.logger.Info("resolved signing key", "keypair", kp)
		return kp
	}

	kp := Keypair{PrivateKey: FallbackKey(), Source: SourceInsecureFallback}
	r.logger.Warn("using built-in insecure fallback key, do not use in production",
		"keypair", kp,
	)
	return kp
}

// FallbackKey returns the deterministic built-in key.
func FallbackKey() solana.PrivateKey {
	return solana.PrivateKey(ed25519.NewKeyFromSeed(fallbackSeed))
}

// DefaultKeypairPath is where the Solana CLI writes its default keypair.
func DefaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func fromJSONArray(secret string) (solana.PrivateKey, error) {
	if secret == "" {
		return nil, errNotConfigured
	}
	// Not shaped like an array: leave it to the base64 strategy.
	if !strings.HasPrefix(secret, "[") {
		return nil, errNotConfigured
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFileBytes([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("parse secret as byte array: %w", err)
	}
	return checkKey(key)
}

func fromBase64(secret string) (solana.PrivateKey, error) {
	if secret == "" || strings.HasPrefix(secret, "[") {
		return nil, errNotConfigured
	}
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("parse secret as base64: %w", err)
	}
	return checkKey(solana.PrivateKey(raw))
}

// fromFile reads a JSON byte array keypair file. A missing default file is
// not worth a warning; a missing explicitly configured one is.
func fromFile(path string, explicit bool) (solana.PrivateKey, error) {
	if path == "" {
		return nil, errNotConfigured
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, errNotConfigured
		}
		return nil, fmt.Errorf("read keypair file %s: %w", path, err)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFileBytes(content)
	if err != nil {
		return nil, fmt.Errorf("parse keypair file %s: %w", path, err)
	}
	return checkKey(key)
}

// checkKey rejects secrets whose embedded public half does not match the seed.
func checkKey(key solana.PrivateKey) (solana.PrivateKey, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !derived.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(key[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("secret public half does not match its seed")
	}
	return key, nil
}
