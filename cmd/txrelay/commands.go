package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/brojonat/txrelay/service/gateway"
	"github.com/brojonat/txrelay/service/nats"
	"github.com/brojonat/txrelay/service/relay"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

const lamportsPerSOL = 1_000_000_000

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Perform one relay run",
		Description: `Builds, signs and submits one transfer through the gateway.

On mainnet the fee payer must hold at least 0.01 SOL. Exit status is 0 on
success, 2 when a precondition fails (configuration, API key, balance) and 1
for any other failure.`,
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "lamports",
				Usage: "Transfer amount (default depends on network)",
			},
			&cli.DurationFlag{
				Name:  "grace",
				Usage: "Override STATUS_GRACE_PERIOD",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			grace := e.cfg.StatusGracePeriod
			if c.IsSet("grace") {
				grace = c.Duration("grace")
			}

			ledger := e.ledger()
			deps := relay.Deps{
				Keys:    e.resolver(),
				Ledger:  ledger,
				Poller:  relay.NewStatusPoller(ledger, grace, e.logger),
				Metrics: e.metrics,
				Logger:  e.logger,
			}
			cfg := relay.Config{
				Network:       e.cfg.Network,
				GatewayAPIKey: e.cfg.GatewayAPIKey,
				Recipient:     e.cfg.Recipient,
				Lamports:      c.Uint64("lamports"),
				Tip:           e.cfg.Tip(),
				BuildOptions:  e.cfg.BuildOptions(),
			}

			// A run that will fail its local checks dials nothing; the
			// pipeline reports the failure itself.
			if cfg.Validate() == nil {
				gw, err := gateway.NewClient(e.cfg.GatewayConfig(), nil, e.metrics, e.logger)
				if err != nil {
					return fmt.Errorf("%w: %v", relay.ErrPrecondition, err)
				}
				deps.Gateway = gw

				if e.cfg.NATSURL != "" {
					publisher, err := nats.NewPublisher(e.cfg.NATSURL, e.metrics, e.logger)
					if err != nil {
						e.logger.WarnContext(ctx, "run events will not be published", "error", err)
					} else {
						defer publisher.Close()
						deps.Publisher = publisher
					}
				}
			}

			pipeline := relay.New(cfg, deps)

			result := pipeline.Run(ctx)
			if !result.StoppedBeforeNetwork() {
				e.pushMetrics(context.WithoutCancel(ctx))
			}

			if err := render(c, result, func(w io.Writer) { printResult(w, result) }); err != nil {
				return err
			}
			if !result.Success {
				return result.Err
			}
			return nil
		},
	}
}

func printResult(w io.Writer, r *relay.Result) {
	if r.Success {
		fmt.Fprintf(w, "Relay succeeded on %s\n", r.Network)
	} else {
		fmt.Fprintf(w, "Relay failed on %s at %s (%s)\n", r.Network, r.FailedStage, r.ErrorKind)
	}
	fmt.Fprintf(w, "  Run ID:     %s\n", r.RunID)
	if r.FeePayer != "" {
		fmt.Fprintf(w, "  Fee payer:  %s (%s)\n", r.FeePayer, r.KeySource)
	}
	if r.Recipient != "" {
		fmt.Fprintf(w, "  Recipient:  %s\n", r.Recipient)
		fmt.Fprintf(w, "  Amount:     %d lamports\n", r.Lamports)
	}
	if r.TipLamports > 0 {
		fmt.Fprintf(w, "  Tip:        %d lamports\n", r.TipLamports)
	}
	if r.Signature != "" {
		fmt.Fprintf(w, "  Signature:  %s\n", r.Signature)
	}
	if r.Status != nil {
		if r.Status.Found {
			fmt.Fprintf(w, "  Status:     %s (slot %d)\n", r.Status.ConfirmationStatus, r.Status.Slot)
		} else {
			fmt.Fprintf(w, "  Status:     not found yet\n")
		}
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:      %s\n", r.Error)
	}
}

func keypairCommand() *cli.Command {
	return &cli.Command{
		Name:  "keypair",
		Usage: "Show which signing key would be used",
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			kp := e.resolver().Resolve()

			out := map[string]any{
				"public_key": kp.PublicKey().String(),
				"source":     string(kp.Source),
				"insecure":   kp.IsInsecure(),
			}
			return render(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "Public key: %s\n", kp.PublicKey())
				fmt.Fprintf(w, "Source:     %s\n", kp.Source)
				if kp.IsInsecure() {
					fmt.Fprintln(w, "WARNING: built-in insecure key, never fund it on mainnet")
				}
			})
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the balance of an address (default: the resolved fee payer)",
		ArgsUsage: "[ADDRESS]",
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			var account solanago.PublicKey
			if c.NArg() > 0 {
				account, err = solanago.PublicKeyFromBase58(c.Args().First())
				if err != nil {
					return fmt.Errorf("invalid address %q: %w", c.Args().First(), err)
				}
			} else {
				account = e.resolver().Resolve().PublicKey()
			}

			ctx, cancel := commandContext(c)
			defer cancel()

			lamports, err := e.ledger().GetBalance(ctx, account)
			if err != nil {
				return err
			}

			out := map[string]any{
				"address":  account.String(),
				"network":  string(e.cfg.Network),
				"lamports": lamports,
				"sol":      float64(lamports) / lamportsPerSOL,
			}
			return render(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s on %s: %d lamports (%.9f SOL)\n",
					account, e.cfg.Network, lamports, float64(lamports)/lamportsPerSOL)
				if e.cfg.Network.IsProduction() && lamports < relay.DefaultMinBalanceLamports {
					fmt.Fprintln(w, "Below the mainnet minimum, a run would be refused.")
				}
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Look up a transaction signature once",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("signature is required")
			}
			sig, err := solanago.SignatureFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid signature %q: %w", c.Args().First(), err)
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(c)
			defer cancel()

			snapshot, err := e.ledger().GetSignatureStatus(ctx, sig)
			if err != nil {
				return err
			}

			return render(c, snapshot, func(w io.Writer) {
				if !snapshot.Found {
					fmt.Fprintf(w, "%s: not found\n", snapshot.Signature)
					return
				}
				fmt.Fprintf(w, "%s: %s at slot %d\n", snapshot.Signature, snapshot.ConfirmationStatus, snapshot.Slot)
				if snapshot.Err != nil {
					fmt.Fprintf(w, "  Error: %s\n", *snapshot.Err)
				}
			})
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			out := map[string]string{
				"version": version,
				"commit":  commit,
				"date":    date,
			}
			return render(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "txrelay %s (commit: %s, built: %s)\n", version, commit, date)
			})
		},
	}
}
