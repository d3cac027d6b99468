package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/txrelay/service/gateway"
	"github.com/brojonat/txrelay/service/keysource"
	"github.com/brojonat/txrelay/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

const gatewayEncodingBase64 = "base64"

// Config holds all relay configuration loaded from environment variables.
// Everything is validated at startup so a bad value fails before any network call.
// GatewayAPIKey is not checked here: only the run command needs it, and the
// pipeline reports its absence as a precondition failure.
type Config struct {
	LogLevel string

	// Solana configuration
	Network      solana.Network
	SolanaRPCURL string

	// Signer sources, tried in order by the key resolver
	SignerSecret      string
	SignerKeypairPath string

	// Transfer configuration
	Recipient    *solanago.PublicKey
	TipRecipient *solanago.PublicKey
	TipLamports  uint64

	// Gateway configuration
	GatewayAPIKey          string
	GatewayURL             string
	GatewayClientID        string
	GatewayTimeout         time.Duration
	GatewayEncoding        string
	GatewaySkipSimulation  *bool
	GatewaySkipPriorityFee *bool
	GatewayDeliveryMethod  string

	// Status polling
	StatusGracePeriod time.Duration

	// Optional outputs
	NATSURL        string
	MetricsPushURL string
}

// LoadEnvFile populates the environment from a dotenv file. Variables that are
// already set win. An empty path loads ./.env if it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error listing every invalid value.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error
	var err error

	if cfg.LogLevel, err = ParseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")); err != nil {
		errs = append(errs, err)
	}

	// Solana configuration
	network, err := solana.ParseNetwork(getEnvOrDefault("SOLANA_NETWORK", string(solana.Devnet)))
	if err != nil {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK: %w", err))
	} else {
		cfg.Network = network
		cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", network.DefaultRPCURL())
	}

	cfg.SignerSecret = os.Getenv("SIGNER_SECRET")
	cfg.SignerKeypairPath = os.Getenv("SIGNER_KEYPAIR_PATH")

	// Transfer configuration
	if cfg.Recipient, err = parsePublicKey("RECIPIENT_PUBKEY"); err != nil {
		errs = append(errs, err)
	}
	if cfg.TipRecipient, err = parsePublicKey("TIP_RECIPIENT"); err != nil {
		errs = append(errs, err)
	}
	if cfg.TipLamports, err = parseUint("TIP_LAMPORTS", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.TipLamports > 0 && cfg.TipRecipient == nil {
		errs = append(errs, fmt.Errorf("TIP_LAMPORTS is set but TIP_RECIPIENT is not"))
	}

	// Gateway configuration
	cfg.GatewayAPIKey = os.Getenv("GATEWAY_API_KEY")
	cfg.GatewayURL = getEnvOrDefault("GATEWAY_URL", gateway.DefaultBaseURL)
	cfg.GatewayClientID = os.Getenv("GATEWAY_CLIENT_ID")
	if cfg.GatewayTimeout, err = parseDuration("GATEWAY_TIMEOUT", gateway.DefaultTimeout.String()); err != nil {
		errs = append(errs, err)
	}
	cfg.GatewayEncoding = strings.ToLower(strings.TrimSpace(os.Getenv("GATEWAY_ENCODING")))
	if cfg.GatewaySkipSimulation, err = parseOptionalBool("GATEWAY_SKIP_SIMULATION"); err != nil {
		errs = append(errs, err)
	}
	if cfg.GatewaySkipPriorityFee, err = parseOptionalBool("GATEWAY_SKIP_PRIORITY_FEE"); err != nil {
		errs = append(errs, err)
	}
	cfg.GatewayDeliveryMethod = os.Getenv("GATEWAY_DELIVERY_METHOD")

	// Status polling
	if cfg.StatusGracePeriod, err = parseDuration("STATUS_GRACE_PERIOD", "2s"); err != nil {
		errs = append(errs, err)
	}

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.MetricsPushURL = os.Getenv("METRICS_PUSH_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if _, err := solana.ParseNetwork(string(c.Network)); err != nil {
		errs = append(errs, fmt.Errorf("Network: %w", err))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.GatewayURL == "" {
		errs = append(errs, fmt.Errorf("GatewayURL is required"))
	}

	if c.GatewayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GatewayTimeout must be positive"))
	}

	// Transactions go out and come back as base64; nothing else can be decoded.
	if c.GatewayEncoding != "" && c.GatewayEncoding != gatewayEncodingBase64 {
		errs = append(errs, fmt.Errorf("GatewayEncoding must be %q, got %q", gatewayEncodingBase64, c.GatewayEncoding))
	}

	if c.StatusGracePeriod < 0 {
		errs = append(errs, fmt.Errorf("StatusGracePeriod cannot be negative"))
	}

	if c.TipLamports > 0 && c.TipRecipient == nil {
		errs = append(errs, fmt.Errorf("TipRecipient is required when TipLamports is set"))
	}

	if c.Recipient != nil && c.Recipient.IsZero() {
		errs = append(errs, fmt.Errorf("Recipient cannot be the zero address"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Tip returns the configured tip transfer, or nil when none is configured.
func (c *Config) Tip() *solana.Tip {
	if c.TipRecipient == nil || c.TipLamports == 0 {
		return nil
	}
	return &solana.Tip{Recipient: *c.TipRecipient, Lamports: c.TipLamports}
}

// BuildOptions returns the options sent with buildGatewayTransaction.
func (c *Config) BuildOptions() gateway.BuildOptions {
	return gateway.BuildOptions{
		Encoding:           c.GatewayEncoding,
		SkipSimulation:     c.GatewaySkipSimulation,
		SkipPriorityFee:    c.GatewaySkipPriorityFee,
		DeliveryMethodType: c.GatewayDeliveryMethod,
	}
}

// GatewayConfig returns the gateway client configuration.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		BaseURL:  c.GatewayURL,
		Cluster:  string(c.Network),
		APIKey:   c.GatewayAPIKey,
		ClientID: c.GatewayClientID,
		Timeout:  c.GatewayTimeout,
	}
}

// KeySourceOptions returns the key resolver inputs.
func (c *Config) KeySourceOptions() keysource.Options {
	return keysource.Options{
		Secret:      c.SignerSecret,
		KeypairPath: c.SignerKeypairPath,
	}
}

// ParseLogLevel validates a LOG_LEVEL value.
func ParseLogLevel(level string) (string, error) {
	switch l := strings.ToLower(level); l {
	case "debug", "info", "warn", "error":
		return l, nil
	default:
		return "", fmt.Errorf("LOG_LEVEL: invalid level %q (expected debug, info, warn or error)", level)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseUint parses an unsigned integer from an environment variable or uses a default.
func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseOptionalBool returns nil when the variable is unset.
func parseOptionalBool(key string) (*bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return &result, nil
}

// parsePublicKey returns nil when the variable is unset.
func parsePublicKey(key string) (*solanago.PublicKey, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	pk, err := solanago.PublicKeyFromBase58(value)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid public key %q: %w", key, value, err)
	}
	return &pk, nil
}
