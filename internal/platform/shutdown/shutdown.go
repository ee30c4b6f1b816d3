package shutdown

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/pkg/lifecycle"
)

// Coordinator 负责编排应用程序的优雅停机流程。
type Coordinator struct {
	manager         *lifecycle.Manager
	log             *logger.Logger
	httpTimeout     time.Duration
	gracefulTimeout time.Duration
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(manager *lifecycle.Manager, log *logger.Logger) *Coordinator {
	return &Coordinator{
		manager:         manager,
		log:             log,
		httpTimeout:     15 * time.Second,
		gracefulTimeout: 30 * time.Second,
	}
}

// Serve 启动HTTP服务器并阻塞，直到收到停机信号、ctx被取消或服务器自身出错，
// 然后依次关闭服务器、停止后台服务并执行 finalize。
func (c *Coordinator) Serve(ctx context.Context, server *http.Server, finalize func()) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		c.log.Info("服务器已准备就绪，开始监听", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// 阻塞直到接收到停机信号
	var runErr error
	select {
	case <-ctx.Done():
		c.log.Info("收到关闭信号，开始优雅停机...")
	case err, ok := <-serverErr:
		if ok {
			runErr = err
			c.log.Error("HTTP服务器异常退出，开始停机", "error", err)
		}
	}

	// 1. 关闭HTTP服务器，允许正在进行的请求完成
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.httpTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		c.log.Error("HTTP服务器关闭错误", "error", err)
	} else {
		c.log.Info("HTTP服务器已关闭")
	}

	// 2. 停止后台服务
	c.manager.Shutdown()
	if remaining := c.manager.WaitWithTimeout(c.gracefulTimeout); len(remaining) > 0 {
		c.log.Warn("部分后台服务未能在时限内退出", "services", remaining)
	} else {
		c.log.Info("所有后台服务已退出")
	}

	// 3. 释放资源
	if finalize != nil {
		finalize()
	}
	c.log.Info("优雅停机完成")
	return runErr
}
