package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ashwinyue/next-datakit/internal/handler"
	"github.com/ashwinyue/next-datakit/internal/router"
	"github.com/ashwinyue/next-datakit/internal/service/run"
	"github.com/ashwinyue/next-datakit/internal/service/tools"
)

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	// 设置 Gin 模式
	gin.SetMode(a.cfg.Server.Mode)

	p, err := a.newPipeline(ctx, true)
	if err != nil {
		return err
	}
	validator, err := tools.NewValidator()
	if err != nil {
		return err
	}

	registry := run.NewRegistry(p, a.logger)
	handlers := handler.NewHandlers(a.cfg, p.Writer(), registry, validator.Definitions())
	r := router.SetupRouter(handlers, a.logger, a.metrics)

	srv := &http.Server{
		Addr:         a.cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待中断信号
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if active, ok := registry.Active(); ok {
		a.logger.Info("waiting for active run", "run_id", active.ID)
		registry.Wait()
	}
	a.logger.Info("server exited")
	return nil
}
