package lifecycle

import (
	"context"
	"time"
)

// Handle 是分发给每个后台服务的生命周期控制器。
// 它持有一个派生自Manager的上下文：Manager停机或服务被单独停止时都会被取消。
type Handle struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	done   func()
}

// Name 返回注册时使用的服务名。
func (h *Handle) Name() string {
	return h.name
}

// Ctx 返回Handle内部的ctx
func (h *Handle) Ctx() context.Context {
	return h.ctx
}

// Done 返回一个channel，当服务需要退出时该channel会关闭。
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Err 在Done()的channel关闭后，返回上下文被取消的原因。
func (h *Handle) Err() error {
	return h.ctx.Err()
}

// Stop 单独停止这个服务，不影响Manager中的其他服务。
func (h *Handle) Stop() {
	h.cancel()
}

// Close 通知Manager该服务已经完成退出。
// 应该在服务的Goroutine退出前通过 defer 调用，重复调用是安全的。
func (h *Handle) Close() {
	h.cancel()
	h.done()
}

// Sleep 暂停指定的时长，但如果生命周期句柄被取消，则会提前返回错误。
// 所有后台循环都应使用它来代替 time.Sleep。
func (h *Handle) Sleep(duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Err()
	case <-timer.C:
		return nil
	}
}
