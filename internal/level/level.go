// Package level 把累计经验值换算为等级与升级进度。
package level

import (
	"errors"
	"fmt"
	"sort"
)

// MaxLevel 是默认等级表的最高等级。
const MaxLevel = 20

// defaultThresholds 是每个等级所需的最低累计经验值。
var defaultThresholds = map[int]int{
	1: 0, 2: 50, 3: 150, 4: 300, 5: 500,
	6: 800, 7: 1200, 8: 1800, 9: 2600, 10: 3600,
	11: 5000, 12: 6800, 13: 9000, 14: 12000, 15: 16000,
	16: 21000, 17: 27000, 18: 35000, 19: 45000, 20: 60000,
}

// Info 描述了某个经验值对应的等级状态。
type Info struct {
	Level           int     `json:"level"`
	XP              int     `json:"xp"`
	ProgressPercent float64 `json:"progress_percent"`
	XPToNextLevel   int     `json:"xp_to_next_level"`
}

// Engine 持有一张经过校验的等级表。零值不可用，请使用 NewEngine 或 Default。
type Engine struct {
	// thresholds[i] 是等级 i+1 的门槛
	thresholds []int
}

var defaultEngine = mustEngine(defaultThresholds)

func mustEngine(t map[int]int) *Engine {
	e, err := NewEngine(t)
	if err != nil {
		panic(err)
	}
	return e
}

// Default 返回使用内置等级表的引擎。
func Default() *Engine {
	return defaultEngine
}

// NewEngine 校验并创建一个等级引擎。
// 等级必须从1开始连续编号，等级1的门槛为0，门槛严格递增。
func NewEngine(thresholds map[int]int) (*Engine, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("等级表不能为空")
	}
	levels := make([]int, 0, len(thresholds))
	for l := range thresholds {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	table := make([]int, len(levels))
	for i, l := range levels {
		if l != i+1 {
			return nil, fmt.Errorf("等级表不连续: 缺少等级 %d", i+1)
		}
		xp := thresholds[l]
		if i == 0 && xp != 0 {
			return nil, fmt.Errorf("等级1的门槛必须为0，实际为 %d", xp)
		}
		if i > 0 && xp <= table[i-1] {
			return nil, fmt.Errorf("等级 %d 的门槛 %d 不大于上一级的 %d", l, xp, table[i-1])
		}
		table[i] = xp
	}
	return &Engine{thresholds: table}, nil
}

// MaxLevel 返回该等级表的最高等级。
func (e *Engine) MaxLevel() int {
	return len(e.thresholds)
}

// Threshold 返回某个等级的门槛。越界时返回 false。
func (e *Engine) Threshold(level int) (int, bool) {
	if level < 1 || level > len(e.thresholds) {
		return 0, false
	}
	return e.thresholds[level-1], true
}

// For 返回门槛不超过 xp 的最高等级。负数按0处理。
func (e *Engine) For(xp int) int {
	if xp < 0 {
		xp = 0
	}
	level := 1
	for level < len(e.thresholds) && xp >= e.thresholds[level] {
		level++
	}
	return level
}

// Calculate 计算等级、本级进度百分比和距下一级还差的经验。
func (e *Engine) Calculate(xp int) Info {
	if xp < 0 {
		xp = 0
	}
	lvl := e.For(xp)
	info := Info{Level: lvl, XP: xp}
	if lvl >= len(e.thresholds) {
		info.ProgressPercent = 100
		return info
	}

	current := e.thresholds[lvl-1]
	next := e.thresholds[lvl]
	progress := float64(xp-current) / float64(next-current) * 100
	if progress > 100 {
		progress = 100
	} else if progress < 0 {
		progress = 0
	}
	info.ProgressPercent = progress
	info.XPToNextLevel = max(0, next-xp)
	return info
}

// Table 返回按等级排序的门槛列表，下标0对应等级1。
func (e *Engine) Table() []int {
	out := make([]int, len(e.thresholds))
	copy(out, e.thresholds)
	return out
}

// For 使用内置等级表计算等级。
func For(xp int) int {
	return defaultEngine.For(xp)
}

// Calculate 使用内置等级表计算等级信息。
func Calculate(xp int) Info {
	return defaultEngine.Calculate(xp)
}
