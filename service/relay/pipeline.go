// Package relay sequences one transaction relay run: resolve a key, build a
// transfer, have the gateway assemble it, sign, submit, and take one status
// snapshot. Each run is a single attempt. Nothing is retried.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/txrelay/service/gateway"
	"github.com/brojonat/txrelay/service/keysource"
	"github.com/brojonat/txrelay/service/metrics"
	"github.com/brojonat/txrelay/service/nats"
	"github.com/brojonat/txrelay/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// DefaultMinBalanceLamports is the mainnet safety gate threshold (0.01 SOL).
const DefaultMinBalanceLamports uint64 = 10_000_000

const publishTimeout = 5 * time.Second

// Gateway builds and submits transactions.
type Gateway interface {
	BuildGatewayTransaction(ctx context.Context, unsignedB64 string, opts gateway.BuildOptions) (string, error)
	SendTransaction(ctx context.Context, signedB64 string) (string, error)
}

// Ledger is the read side of the Solana RPC.
type Ledger interface {
	GetBalance(ctx context.Context, account solanago.PublicKey) (uint64, error)
	GetSignatureStatus(ctx context.Context, signature solanago.Signature) (*solana.StatusSnapshot, error)
}

// KeyResolver produces the fee payer key. It must not fail.
type KeyResolver interface {
	Resolve() keysource.Keypair
}

// Publisher receives run outcomes.
type Publisher interface {
	PublishRun(ctx context.Context, event *nats.RunEvent) error
}

// Config is the per-run configuration.
type Config struct {
	Network            solana.Network
	GatewayAPIKey      string
	Recipient          *solanago.PublicKey // nil sends to a throwaway address; refused on mainnet
	Lamports           uint64              // zero selects the network default
	Tip                *solana.Tip
	BuildOptions       gateway.BuildOptions
	MinBalanceLamports uint64 // zero selects DefaultMinBalanceLamports
}

// Validate checks what can be checked without touching the network.
func (c Config) Validate() error {
	if c.GatewayAPIKey == "" {
		return fmt.Errorf("%w: gateway API key is not configured", ErrPrecondition)
	}
	if c.Recipient == nil && c.Network.IsProduction() {
		return fmt.Errorf("%w: a recipient is required on %s", ErrPrecondition, c.Network)
	}
	return nil
}

// Deps are the collaborators of a pipeline. Publisher and Metrics are optional.
// A nil Poller polls with DefaultStatusGrace.
type Deps struct {
	Keys      KeyResolver
	Gateway   Gateway
	Ledger    Ledger
	Poller    *StatusPoller
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Pipeline runs the relay state machine. It keeps no state between runs.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New creates a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MinBalanceLamports == 0 {
		cfg.MinBalanceLamports = DefaultMinBalanceLamports
	}
	if deps.Poller == nil {
		deps.Poller = NewStatusPoller(deps.Ledger, DefaultStatusGrace, deps.Logger)
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// run is the state owned by a single invocation of Run.
type run struct {
	keypair     keysource.Keypair
	unsigned    *solana.UnsignedTransaction
	unsignedB64 string
	builtB64    string
	signed      *solana.SignedTransaction
	signature   solanago.Signature
	result      *Result
}

type stepFunc func(ctx context.Context, r *run) (State, error)

func (p *Pipeline) step(state State) stepFunc {
	switch state {
	case StateResolvingKey:
		return p.resolveKey
	case StateSafetyGate:
		return p.safetyGate
	case StateBuilding:
		return p.build
	case StateAwaitingGatewayBuild:
		return p.awaitGatewayBuild
	case StateSigning:
		return p.sign
	case StateSending:
		return p.send
	case StatePollingStatus:
		return p.pollStatus
	default:
		return nil
	}
}

// Run performs one relay attempt and always returns a terminal result.
// The first step error ends the run.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &run{result: &Result{
		RunID:     uuid.NewString(),
		Network:   p.cfg.Network,
		StartedAt: time.Now().UTC(),
		Stages:    []StageTiming{},
	}}
	logger := p.deps.Logger.With("run_id", r.result.RunID, "network", string(p.cfg.Network))

	state := StateResolvingKey
	for state != StateDone {
		step := p.step(state)
		if step == nil {
			p.fail(r, state, fmt.Errorf("no step for state %q", state))
			break
		}

		start := time.Now()
		next, err := step(ctx, r)
		elapsed := time.Since(start)

		r.result.Stages = append(r.result.Stages, StageTiming{Stage: state, DurationMS: elapsed.Milliseconds()})
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordStage(string(state), err, elapsed.Seconds())
		}

		if err != nil {
			p.fail(r, state, err)
			logger.ErrorContext(ctx, "relay stage failed",
				"stage", string(state),
				"error_kind", string(r.result.ErrorKind),
				"error", err,
			)
			break
		}

		logger.DebugContext(ctx, "relay stage completed",
			"stage", string(state),
			"next", string(next),
			"duration_ms", elapsed.Milliseconds(),
		)
		state = next
	}

	if r.result.Err == nil {
		r.result.Success = true
	}
	r.result.FinishedAt = time.Now().UTC()

	p.report(ctx, logger, r.result)
	return r.result
}

func (p *Pipeline) fail(r *run, state State, err error) {
	stageErr := &StageError{Stage: state, Err: err}
	r.result.Err = stageErr
	r.result.Error = stageErr.Error()
	r.result.FailedStage = state
	r.result.ErrorKind = Kind(err)
}

// report records metrics, logs the outcome and publishes the event.
// A publish failure is logged and does not change the outcome.
func (p *Pipeline) report(ctx context.Context, logger *slog.Logger, result *Result) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordRun(string(result.Network), outcome, string(result.ErrorKind))
	}

	logger.InfoContext(ctx, "relay run finished",
		"outcome", outcome,
		"signature", result.Signature,
		"failed_stage", string(result.FailedStage),
		"error_kind", string(result.ErrorKind),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	)

	if p.deps.Publisher == nil {
		return
	}
	if result.StoppedBeforeNetwork() {
		logger.DebugContext(ctx, "run stopped before any network call, not publishing")
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.deps.Publisher.PublishRun(pubCtx, result.Event()); err != nil {
		logger.WarnContext(ctx, "failed to publish run event", "error", err)
	}
}

func (p *Pipeline) resolveKey(ctx context.Context, r *run) (State, error) {
	// Checked first so a misconfigured run makes no network call at all.
	if err := p.cfg.Validate(); err != nil {
		return "", err
	}
	if p.deps.Gateway == nil {
		return "", fmt.Errorf("%w: no gateway client configured", ErrPrecondition)
	}

	r.keypair = p.deps.Keys.Resolve()
	r.result.FeePayer = r.keypair.PublicKey().String()
	r.result.KeySource = r.keypair.Source
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordKeySource(string(r.keypair.Source))
	}

	if r.keypair.IsInsecure() && p.cfg.Network.IsProduction() {
		p.deps.Logger.WarnContext(ctx, "insecure fallback key selected for a production network",
			"fee_payer", r.result.FeePayer,
		)
	}

	if p.cfg.Network.IsProduction() {
		return StateSafetyGate, nil
	}
	return StateBuilding, nil
}

// safetyGate blocks underfunded mainnet runs before anything is built or sent.
func (p *Pipeline) safetyGate(ctx context.Context, r *run) (State, error) {
	balance, err := p.deps.Ledger.GetBalance(ctx, r.keypair.PublicKey())
	if err != nil {
		return "", fmt.Errorf("check fee payer balance: %w", err)
	}
	r.result.Balance = &balance

	if balance < p.cfg.MinBalanceLamports {
		return "", fmt.Errorf("%w: fee payer %s holds %d lamports, minimum is %d",
			ErrPrecondition, r.keypair.PublicKey(), balance, p.cfg.MinBalanceLamports)
	}
	return StateBuilding, nil
}

func (p *Pipeline) build(ctx context.Context, r *run) (State, error) {
	unsigned, err := solana.BuildTransfer(solana.TransferParams{
		FeePayer:  r.keypair.PublicKey(),
		Recipient: p.cfg.Recipient,
		Network:   p.cfg.Network,
		Lamports:  p.cfg.Lamports,
		Tip:       p.cfg.Tip,
	})
	if err != nil {
		return "", err
	}
	b64, err := unsigned.Base64()
	if err != nil {
		return "", err
	}

	r.unsigned = unsigned
	r.unsignedB64 = b64
	r.result.Recipient = unsigned.Recipient.String()
	r.result.Lamports = unsigned.Lamports
	r.result.TipLamports = unsigned.TipLamports

	if p.cfg.Recipient == nil {
		p.deps.Logger.WarnContext(ctx, "no recipient configured, sending to a throwaway address",
			"recipient", r.result.Recipient,
		)
	}
	return StateAwaitingGatewayBuild, nil
}

func (p *Pipeline) awaitGatewayBuild(ctx context.Context, r *run) (State, error) {
	built, err := p.deps.Gateway.BuildGatewayTransaction(ctx, r.unsignedB64, p.cfg.BuildOptions)
	if err != nil {
		return "", err
	}
	r.builtB64 = built
	return StateSigning, nil
}

func (p *Pipeline) sign(ctx context.Context, r *run) (State, error) {
	signed, err := solana.SignBuiltTransaction(r.builtB64, r.keypair.PrivateKey)
	if err != nil {
		return "", err
	}
	r.signed = signed
	r.signature = signed.Signature

	summary := solana.SummarizeTransaction(signed.Tx)
	r.result.Built = summary
	p.deps.Logger.InfoContext(ctx, "gateway built transaction",
		"instructions", summary.InstructionCount,
		"programs", summary.Programs,
		"transfers", len(summary.Transfers),
		"compute_budget", summary.HasComputeBudget,
		"blockhash", summary.Blockhash,
	)

	if signed.Tx.Message.RecentBlockhash.Equals(solana.PlaceholderBlockhash) {
		p.deps.Logger.WarnContext(ctx, "gateway returned the placeholder blockhash, the ledger will reject it")
	}

	for _, missing := range signed.MissingSigners {
		r.result.MissingSigners = append(r.result.MissingSigners, missing.String())
	}
	if len(signed.MissingSigners) > 0 {
		p.deps.Logger.WarnContext(ctx, "transaction requires signers this relay does not hold",
			"missing_signers", r.result.MissingSigners,
		)
	}
	return StateSending, nil
}

func (p *Pipeline) send(ctx context.Context, r *run) (State, error) {
	signature, err := p.deps.Gateway.SendTransaction(ctx, r.signed.Base64)
	if err != nil {
		return "", err
	}
	r.result.Signature = signature

	// Poll with what the gateway reported when it parses; our own fee payer
	// signature otherwise.
	if reported, err := solanago.SignatureFromBase58(signature); err == nil {
		if !reported.Equals(r.signature) {
			p.deps.Logger.WarnContext(ctx, "gateway reported a different signature than the one signed",
				"reported", signature,
				"signed", r.signature.String(),
			)
		}
		r.signature = reported
	}

	p.deps.Logger.InfoContext(ctx, "transaction submitted", "signature", signature)
	return StatePollingStatus, nil
}

func (p *Pipeline) pollStatus(ctx context.Context, r *run) (State, error) {
	snapshot, err := p.deps.Poller.Poll(ctx, r.signature)
	if err != nil {
		return "", fmt.Errorf("status lookup for %s: %w", r.signature, err)
	}
	r.result.Status = snapshot

	if snapshot.Err != nil {
		return "", fmt.Errorf("%w: %s", ErrTransactionFailed, *snapshot.Err)
	}
	return StateDone, nil
}
