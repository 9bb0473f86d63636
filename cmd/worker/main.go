package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"ats-autopilot/internal/artifact"
	"ats-autopilot/internal/breaker"
	"ats-autopilot/internal/config"
	"ats-autopilot/internal/dispatch"
	"ats-autopilot/internal/queue"
	"ats-autopilot/internal/ratelimit"
	"ats-autopilot/internal/schedule"
	"ats-autopilot/internal/store"
	"ats-autopilot/internal/telemetry"
	"ats-autopilot/internal/upstream"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	q := queue.NewRedisQueueWithClient(client, cfg)
	sched := schedule.New(st, q, schedule.NewSlotAllocator(client))

	policies, err := config.LoadPlatformPolicies(cfg.PlatformPolicyFile)
	if err != nil {
		log.Fatalf("platform policies: %v", err)
	}
	limiter := ratelimit.NewPlatformLimiter(client, policies)
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
	})

	clients := upstream.NewClients(cfg, breakers)
	d := dispatch.New(cfg, sched, limiter, breakers, upstream.NewAssembler(clients), policies)

	archiver, err := artifact.New(ctx, cfg, st)
	if err != nil {
		log.Fatalf("init artifact store: %v", err)
	}
	d.SetArchiver(archiver)
	d.SetRecorder(st)

	if dryRun, _ := strconv.ParseBool(os.Getenv("DRY_RUN")); dryRun {
		d.RegisterAdapter("default", dispatch.DryRunAdapter{})
		log.Printf("DRY_RUN enabled: submissions are accepted without contacting any ATS")
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.CleanupSpec, func() {
		n, err := sched.CleanupTerminal(context.Background(), cfg.TerminalJobMaxAge)
		if err != nil {
			log.Printf("cleanup: %v", err)
			return
		}
		if n > 0 {
			log.Printf("cleanup: removed %d terminal applications", n)
		}
	}); err != nil {
		log.Fatalf("cleanup schedule: %v", err)
	}
	c.Start()
	defer c.Stop()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started visibility=%s concurrency=%d", cfg.VisibilityTimeout, cfg.SubmitConcurrency)
	if err := d.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
