package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/reservation-engine/internal/config"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/queue"
)

var workerMaxAttempts int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Retry failed refunds and payouts and write the reservation audit log",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerMaxAttempts, "max-attempts", 5, "attempts per settlement task before it is dropped")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.BrokerURL == "" {
		return errors.New("worker needs RABBITMQ_URL or AMQP_URL")
	}
	pcfg := config.LoadPaymentConfig()
	gateway := payment.NewGateway(payment.Config{
		BaseURL:        pcfg.BaseURL,
		SecretKey:      pcfg.SecretKey,
		Timeout:        pcfg.Timeout,
		MaxRetries:     uint64(pcfg.MaxRetries),
		InitialBackoff: pcfg.InitialBackoff,
	}, logging.New("payment", cfg.LogLevel))

	settleLog := logging.New("settlement", cfg.LogLevel)
	settler := queue.NewSettlementWorker(cfg.BrokerURL, gateway,
		queue.NewSettlementPublisher(cfg.BrokerURL, settleLog), workerMaxAttempts, settleLog)
	audit := queue.NewAuditConsumer(cfg.BrokerURL, cfg.AuditLogDir, logging.New("audit", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started (env=%s)", cfg.Env)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return settler.Run(ctx) })
	g.Go(func() error { return audit.Run(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("worker stopped")
	return nil
}
