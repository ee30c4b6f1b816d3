package user

import (
	"sort"

	"github.com/SlpAus/dialect-voice-backend/internal/level"
)

// Capability 是用户可以执行的一类操作。
type Capability string

const (
	CapRecord            Capability = "record"
	CapVote              Capability = "vote"
	CapReview            Capability = "review"
	CapFeature           Capability = "feature"
	CapCreatePrompt      Capability = "create_prompt"
	CapModerate          Capability = "moderate"
	CapManageLeaderboard Capability = "manage_leaderboard"
)

// CapabilitySet 是一个用户当前拥有的能力集合。
type CapabilitySet map[Capability]bool

func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// List 以稳定的顺序返回集合中的能力。
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c, ok := range s {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func perkLevel(p level.Perk) int {
	l, ok := level.PerkLevel(p)
	if !ok {
		return level.MaxLevel + 1
	}
	return l
}

// CapabilitiesFor 是角色与等级门槛的唯一判定处。
// 等级门槛取自 level 包的能力表。u 为 nil 表示未识别的访客。
func CapabilitiesFor(u *User) CapabilitySet {
	set := CapabilitySet{CapRecord: true}
	if u == nil {
		return set
	}
	set[CapVote] = true

	if u.IsAdmin || u.IsReviewer || u.Level >= perkLevel(level.PerkReview) {
		set[CapReview] = true
	}
	if u.IsAdmin || u.Level >= perkLevel(level.PerkFeature) {
		set[CapFeature] = true
	}
	if u.IsAdmin || u.Level >= perkLevel(level.PerkCreatePrompt) {
		set[CapCreatePrompt] = true
	}
	if u.IsAdmin {
		set[CapModerate] = true
		set[CapManageLeaderboard] = true
	}
	return set
}
