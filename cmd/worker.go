package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/ifarm/internal/jobs"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background job worker",
	Long:  `Run the asynq worker and scheduler. The scheduler enqueues delegation:expire on the configured cron spec.`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

var expireNowCmd = &cobra.Command{
	Use:   "expire-now",
	Short: "Enqueue an immediate delegation expiry sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		return enqueueExpireNow(cmd.Context())
	},
}

var (
	workerConcurrency int
	expireCron        string
)

func startWorker() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	app, err := buildApp(context.Background(), cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	expireTask, err := jobs.NewDelegationExpireTask(jobs.DelegationExpirePayload{})
	if err != nil {
		app.Logger.Error("failed to build expire task", "error", err)
		return
	}
	spec := getStringFlag(expireCron, cfg.Worker.ExpireCron)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   jobs.RedisOpt(cfg.Redis),
		Concurrency: getIntFlag(workerConcurrency, cfg.Worker.Concurrency),
		Queue:       cfg.Worker.Queue,
		Logger:      app.Logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDelegationExpire, Handler: jobs.NewDelegationExpireJob(app.Delegations, app.Logger).Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: spec, Task: expireTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(time.Minute)}},
		},
	})
	if err != nil {
		app.Logger.Error("failed to build worker", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Logger.Info("worker is running. Press Ctrl+C to stop.",
		"queue", cfg.Worker.Queue,
		"expire_cron", spec)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error("worker stopped with error", "error", err)
		return
	}
	app.Logger.Info("worker shutdown complete")
}

func enqueueExpireNow(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := jobs.NewClient(jobs.RedisOpt(cfg.Redis), cfg.Worker.Queue)
	defer client.Close()

	info, err := client.EnqueueDelegationExpire(ctx, jobs.DelegationExpirePayload{})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobs.TaskDelegationExpire, err)
	}
	fmt.Printf("enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
	return nil
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Worker concurrency (overrides config)")
	workerCmd.Flags().StringVar(&expireCron, "expire-cron", "", "Cron spec for delegation:expire (overrides config)")

	workerCmd.AddCommand(expireNowCmd)
	rootCmd.AddCommand(workerCmd)
}
