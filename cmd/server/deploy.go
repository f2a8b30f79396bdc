package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saasplatform/backend/internal/domain"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <subscription-id>",
	Short: "Deploy a subscription and stream its progress",
	Long: `Run one deployment in the foreground and print each progress event as a JSON line.

The subscription is read from the database at DATABASE_URL, which is required:
without it there is no store shared with the API server to deploy from.
With REDIS_URL set, the events are also published to other replicas.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid subscription id %q", args[0])
	}
	if cfg.DatabaseURL == "" {
		return errors.New("deploy requires DATABASE_URL")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(sigCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return streamDeployment(sigCtx, a, id, cmd.OutOrStdout())
}

// streamDeployment runs the deployment for id and writes its events to w until Completed.
func streamDeployment(ctx context.Context, a *app, id int, w io.Writer) error {
	if err := a.startRelay(ctx); err != nil {
		return err
	}

	sub := a.hub.Subscribe(id)
	defer a.hub.Unsubscribe(sub)

	// Run only returns an error when it emitted nothing, so stop waiting for events then.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		err := a.executor.Run(ctx, id)
		if err != nil {
			cancel()
		}
		runErr <- err
	}()

	enc := json.NewEncoder(w)
	for {
		ev, err := sub.Next(waitCtx)
		if err != nil {
			break
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if ev.Type == domain.EventCompleted {
			break
		}
	}

	if err := <-runErr; err != nil {
		return err
	}
	return ctx.Err()
}
