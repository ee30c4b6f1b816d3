package vote

// Tally 是一条录音的赞踩计数，也用来表示计数的变化量。
type Tally struct {
	Up   int `json:"upvotes"`
	Down int `json:"downvotes"`
}

// Apply 把变化量加到计数上，结果不小于0。
func (t Tally) Apply(delta Tally) Tally {
	return Tally{Up: max(0, t.Up+delta.Up), Down: max(0, t.Down+delta.Down)}
}

func deltaFor(t Type, n int) Tally {
	if t == TypeUpvote {
		return Tally{Up: n}
	}
	return Tally{Down: n}
}

// Transition 计算一次投票后的状态：
// 再次投同一类型撤销投票；投另一类型则切换；之前没有投票则新增。
func Transition(prev *Type, cast Type) (next *Type, delta Tally) {
	switch {
	case prev == nil:
		t := cast
		return &t, deltaFor(cast, 1)
	case *prev == cast:
		return nil, deltaFor(cast, -1)
	default:
		t := cast
		d := deltaFor(cast, 1)
		old := deltaFor(*prev, -1)
		return &t, Tally{Up: d.Up + old.Up, Down: d.Down + old.Down}
	}
}
