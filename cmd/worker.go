/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boardsync/apiserver/config"
	"github.com/boardsync/apiserver/internal/email"
	"github.com/boardsync/apiserver/internal/logger"
	"github.com/boardsync/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued emails",
	Long: `Consumes the email-delivery queue and sends each message over SMTP.
It needs a distributed message queue (MQ_BACKEND=rabbitmq or pubsub). Usage:

	boardsync worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.New(cfg.Env, cfg.LogLevel)
		slog.SetDefault(log)

		if !mq.Distributed(cfg.MQ) {
			return errors.New("worker requires MQ_BACKEND=rabbitmq or pubsub")
		}

		var sender email.Sender = email.NewLogSender(log)
		if cfg.SMTP.Enabled() {
			smtp, err := email.NewSMTPSender(cfg.SMTP)
			if err != nil {
				return err
			}
			sender = smtp
		}

		ctx := cmd.Context()
		backend, err := mq.NewBackend(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		queue := mq.New(backend)
		defer queue.Close()

		log.Info("email worker started", "mq_backend", cfg.MQ.Backend)
		if err := email.NewWorker(queue, sender, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker stopped: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
