package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wote-dev/simplr-web-sub000/internal/cache"
	"github.com/wote-dev/simplr-web-sub000/internal/config"
	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/engine"
	httpServer "github.com/wote-dev/simplr-web-sub000/internal/http"
	"github.com/wote-dev/simplr-web-sub000/internal/logger"
	"github.com/wote-dev/simplr-web-sub000/internal/remote"
	"github.com/wote-dev/simplr-web-sub000/internal/reminder"
	"github.com/wote-dev/simplr-web-sub000/internal/session"
	"github.com/wote-dev/simplr-web-sub000/internal/store"
	"github.com/wote-dev/simplr-web-sub000/internal/stream"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		logger.Fatal("open cache", "error", err)
	}
	defer c.Close()

	st := store.New()
	repo := remote.NewClient(cfg.APIBaseURL, cfg.SessionToken, cfg.RequestTimeout)
	sub := stream.NewSubscriber(cfg.StreamURL, cfg.SessionToken, st.Apply)

	sched := reminder.NewScheduler(
		func(t domain.Task) {
			logger.Info("notification", "task_id", t.ID, "title", t.Title)
		},
		func(id int64) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
			defer cancel()
			if err := st.MarkReminderSent(ctx, id); err != nil {
				logger.Warn("mark reminder sent", "task_id", id, "error", err)
			}
		},
	)

	sess := session.NewJWTProvider(cfg.JWTSecret)
	// keep the CRUD client's bearer current; registered before the engine so
	// the token is in place by the time the engine reacts to a sign-in
	sess.OnChange(func(session.State) {
		repo.SetToken(sess.Token())
	})

	eng := engine.New(st, c, repo, sub, sess, sched)
	eng.Start(context.Background())
	defer eng.Close()

	// resolving the token after Start lets the engine observe the sign-in
	sess.SetToken(cfg.SessionToken)

	r := gin.Default()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	httpServer.RegisterRoutes(r, eng, st, c, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("facade listening", "port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", "error", err)
	}

	logger.Info("exited")
}
