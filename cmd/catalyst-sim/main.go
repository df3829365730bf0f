// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command catalyst-sim runs a network of pools connected through an
// in-process chain interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sengulatik66/catalyst/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "catalyst-sim",
		Short:        "Simulate cross-chain swaps between amplified pools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the YAML config (defaults to $"+config.EnvConfigPath+")")

	root.AddCommand(
		simulateCmd(&cfgPath),
		relayCmd(&cfgPath),
	)
	return root
}

func setup(cfgPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func unixNow() uint64 {
	return uint64(time.Now().Unix())
}

func simulateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Send the configured swap from the first pool to the second and relay it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx := cmd.Context()
			now := unixNow()
			n, err := buildNetwork(ctx, cfg, log, prometheus.NewRegistry(), now)
			if err != nil {
				return err
			}

			quoted, err := n.quote(ctx, cfg.Swap, now)
			if err != nil {
				return fmt.Errorf("quote: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "quote: %s units -> %s out\n", quoted.units.Dec(), quoted.out.Dec())

			id, units, err := n.swap(ctx, cfg.Swap, now)
			if err != nil {
				return fmt.Errorf("send asset: %w", err)
			}
			log.Info("swap sent", zap.Stringer("id", id), zap.String("units", units.Dec()))

			if _, err := n.relay(ctx, now); err != nil {
				return err
			}
			n.report(ctx, now)

			for _, ev := range n.events.Events() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.Pool.Hex(), ev.Event.EventName())
			}
			return nil
		},
	}
}

func relayCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Relay queued packets on the configured cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			n, err := buildNetwork(ctx, cfg, log, prometheus.NewRegistry(), unixNow())
			if err != nil {
				return err
			}

			c := cron.New(cron.WithSeconds())
			if _, err := c.AddFunc(cfg.Relay.Cron, func() {
				now := unixNow()
				if _, err := n.relay(ctx, now); err != nil {
					log.Warn("relay interrupted", zap.Error(err))
					return
				}
				n.report(ctx, now)
			}); err != nil {
				return fmt.Errorf("register relay task: %w", err)
			}

			if _, _, err := n.swap(ctx, cfg.Swap, unixNow()); err != nil {
				return fmt.Errorf("send asset: %w", err)
			}

			c.Start()
			log.Info("relayer started", zap.String("cron", cfg.Relay.Cron))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit
			log.Info("shutting down", zap.Stringer("signal", sig))

			cancel()
			<-c.Stop().Done()
			return nil
		},
	}
}
