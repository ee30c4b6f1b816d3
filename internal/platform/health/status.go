package health

import (
	"sync"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
)

// State 定义了系统健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateRebuilding:
		return "rebuilding"
	default:
		return "unknown"
	}
}

// Status 线程安全地维护Redis缓存层的健康状态。
// 只有处于 [健康] 状态时，业务代码才应信任Redis中的派生数据。
type Status struct {
	mu             sync.RWMutex
	currentState   State
	lastKnownRunID string
	log            *logger.Logger
}

// NewStatus 创建一个初始为 [健康] 的状态机。
func NewStatus(log *logger.Logger) *Status {
	return &Status{currentState: StateHealthy, log: log}
}

// State 返回当前的系统健康状态。
func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentState
}

// IsRedisHealthy 报告Redis中的缓存是否可信。
func (s *Status) IsRedisHealthy() bool {
	return s.State() == StateHealthy
}

// SetInitialRunID 在应用启动时调用，设置初始的Redis run_id。
func (s *Status) SetInitialRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastKnownRunID = runID
}

// Assess 根据一次检查结果推进状态机，返回是否需要重建缓存。
func (s *Status) Assess(connected bool, newRunID string) (needsRebuild bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restarted := s.lastKnownRunID != "" && s.lastKnownRunID != newRunID

	switch s.currentState {
	case StateHealthy:
		if !connected {
			s.currentState = StateDegraded
			s.log.Warn("健康检查: Redis连接丢失，系统状态 -> [降级]")
		} else if restarted {
			s.currentState = StateRebuilding
			needsRebuild = true
			s.log.Warn("健康检查: 检测到Redis重启，系统状态 -> [重建中]", "old_run_id", s.lastKnownRunID, "new_run_id", newRunID)
		}
	case StateDegraded:
		if connected {
			// 降级期间写入可能只落在了数据库里，恢复时总是重建
			s.currentState = StateRebuilding
			needsRebuild = true
			s.log.Info("健康检查: Redis连接已恢复，系统状态 -> [重建中]", "restarted", restarted)
		}
	case StateRebuilding:
		if !connected {
			s.currentState = StateDegraded
			s.log.Warn("健康检查: 在缓存重建期间Redis连接再次丢失，系统状态 -> [降级]")
		} else {
			// 连接正常但仍处于重建状态，说明上次重建失败了
			needsRebuild = true
			s.log.Info("健康检查: 系统处于[重建中]状态，将再次尝试重建缓存")
		}
	}

	if connected {
		s.lastKnownRunID = newRunID
	}
	return needsRebuild
}

// MarkRebuildComplete 在一次重建尝试之后调用。
func (s *Status) MarkRebuildComplete(success bool, runIDAfterRebuild string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentState != StateRebuilding {
		return
	}

	if success && s.lastKnownRunID != runIDAfterRebuild {
		s.log.Error("健康检查: 缓存重建期间检测到Redis再次重启，重建无效，保持[重建中]状态",
			"old_run_id", s.lastKnownRunID, "new_run_id", runIDAfterRebuild)
		s.lastKnownRunID = runIDAfterRebuild
		return
	}

	if success {
		s.currentState = StateHealthy
		s.log.Info("健康检查: 缓存重建成功，系统状态 -> [健康]")
	} else {
		s.log.Error("健康检查: 缓存重建失败，系统状态保持 [重建中] 以待重试")
	}
}
