package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger 是管理器输出日志所需的最小接口，键值对形式与项目的日志器一致。
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}

// Manager 负责向后台服务分发句柄(Handle)，并在停机时等待它们全部退出。
type Manager struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]struct{}
	log      Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建一个新的生命周期管理器。log 为 nil 时不输出日志。
func NewManager(log Logger) *Manager {
	if log == nil {
		log = nopLogger{}
	}
	m := &Manager{
		services: make(map[string]struct{}),
		log:      log,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewServiceHandle 为一个服务创建一个新的生命周期句柄(Handle)。
// 同名服务在退出(Close)之前不能重复注册。
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("生命周期管理器: 已停机，无法注册服务 '%s'", name)
	}
	if _, exists := m.services[name]; exists {
		return nil, fmt.Errorf("生命周期管理器: 服务 '%s' 已被注册", name)
	}
	m.services[name] = struct{}{}
	m.wg.Add(1)
	m.log.Debug("生命周期管理器: 服务已注册", "service", name)

	ctx, cancel := context.WithCancel(m.ctx)
	var once sync.Once
	return &Handle{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		done: func() {
			once.Do(func() {
				m.mu.Lock()
				delete(m.services, name)
				m.mu.Unlock()
				m.wg.Done()
				m.log.Debug("生命周期管理器: 服务已退出", "service", name)
			})
		},
	}, nil
}

// Running 报告指定名称的服务是否仍在运行。
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.services[name]
	return ok
}

// Shutdown 广播停机信号，所有句柄的上下文都会被取消。
func (m *Manager) Shutdown() {
	m.log.Info("生命周期管理器: 广播停机信号...")
	m.cancel()
}

// WaitWithTimeout 等待所有已注册的服务完成，直到指定的超时。
// 返回超时时仍未退出的服务名。
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	doneChan := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneChan)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-doneChan:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		remaining := make([]string, 0, len(m.services))
		for name := range m.services {
			remaining = append(remaining, name)
		}
		sort.Strings(remaining)
		return remaining
	}
}
