package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"
)

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			fmt.Println("cli error:", err)
		}

		os.Exit(2)
	}

	wg := sync.WaitGroup{}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger, closeLogger := setupLogger()

	conf, err := setupConfig(logger)
	if err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(2)
	}

	joinCtx, cancelJoin := context.WithTimeout(context.Background(), conf.JoinTimeout+5*time.Second)

	node, closeNode, err := setupNode(joinCtx, conf, logger)
	if err != nil {
		cancelJoin()
		level.Error(logger).Log("msg", "failed to join cluster", "err", err)
		os.Exit(1)
	}

	cancelJoin()

	jobsCtx, cancelJobs := context.WithCancel(context.Background())

	wg.Add(1)

	go func() {
		defer wg.Done()
		runCleanupJob(jobsCtx, node, logger, time.Duration(opts.Jobs.CleanupInterval)*time.Second)
	}()

	// Components must be shut down in a particular order.
	shutdownOrder := []shutdownFunc{
		closeNode,
		closeLogger,
	}

	// Block until we receive a signal to shut down.
	<-interrupt
	level.Info(logger).Log("msg", "received interrupt signal, shutting down")

	cancelJobs()
	wg.Wait()

	for _, f := range shutdownOrder {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		if err := f(ctx); err != nil {
			level.Error(logger).Log("msg", "failed to shutdown component", "err", err)
		}

		cancel()
	}
}
