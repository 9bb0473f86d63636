package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ats-autopilot/internal/api"
	"ats-autopilot/internal/breaker"
	"ats-autopilot/internal/config"
	"ats-autopilot/internal/dispatch"
	"ats-autopilot/internal/queue"
	"ats-autopilot/internal/ratelimit"
	"ats-autopilot/internal/schedule"
	"ats-autopilot/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
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
	// The API only schedules; the dispatcher here exists for bulk intake and
	// never runs a submission loop.
	d := dispatch.New(cfg, sched, limiter, breakers, nil, policies)

	server := api.New(cfg, sched, d, breakers)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
