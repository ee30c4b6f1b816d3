package leaderboard

import (
	"sort"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
)

// Limits 是三个榜单各自保留的名次数。
type Limits struct {
	Total int
	Today int
	Level int
}

// DefaultLimits 返回默认的榜单长度。
func DefaultLimits() Limits {
	return Limits{Total: 50, Today: 20, Level: 30}
}

// Compute 根据用户和录音计算排行榜条目。
// users 的顺序决定同分时的先后 (稳定排序)。
// 匿名用户和没有任何录音的用户不上榜；今日榜只统计 now 在 loc 中的同一天、未被删除的录音。
func Compute(users []user.User, records []recording.DialectRecord, now time.Time, loc *time.Location, limits Limits) []Entry {
	// 1. 按用户统计今日录音数
	today := user.CalendarDate(now, loc)
	todayCounts := make(map[string]int)
	for _, r := range records {
		if r.SoftDeleted || r.UserID == "" {
			continue
		}
		if user.CalendarDate(r.CreatedAt, loc) == today {
			todayCounts[r.UserID]++
		}
	}

	// 2. 筛选可上榜的用户
	eligible := make([]user.User, 0, len(users))
	for _, u := range users {
		if u.IsAnonymous || u.TotalRecordings <= 0 {
			continue
		}
		eligible = append(eligible, u)
	}

	entries := make([]Entry, 0, limits.Total)
	index := make(map[string]int)
	claim := func(u user.User) *Entry {
		if i, ok := index[u.ID]; ok {
			return &entries[i]
		}
		entries = append(entries, Entry{
			UserID:          u.ID,
			DisplayName:     u.Name(),
			Avatar:          u.Avatar,
			Level:           u.Level,
			TotalRecordings: u.TotalRecordings,
			TotalXP:         u.TotalXP,
			TodayRecordings: todayCounts[u.ID],
			CurrentStreak:   u.CurrentStreak,
			LastUpdated:     now,
		})
		index[u.ID] = len(entries) - 1
		return &entries[len(entries)-1]
	}

	// 3. 总录音榜
	byTotal := append([]user.User(nil), eligible...)
	sort.SliceStable(byTotal, func(i, j int) bool {
		return byTotal[i].TotalRecordings > byTotal[j].TotalRecordings
	})
	for i, u := range head(byTotal, limits.Total) {
		rank := i + 1
		claim(u).RankTotal = &rank
	}

	// 4. 今日榜
	byToday := make([]user.User, 0, len(todayCounts))
	for _, u := range eligible {
		if todayCounts[u.ID] > 0 {
			byToday = append(byToday, u)
		}
	}
	sort.SliceStable(byToday, func(i, j int) bool {
		return todayCounts[byToday[i].ID] > todayCounts[byToday[j].ID]
	})
	for i, u := range head(byToday, limits.Today) {
		rank := i + 1
		claim(u).RankToday = &rank
	}

	// 5. 等级榜
	byLevel := append([]user.User(nil), eligible...)
	sort.SliceStable(byLevel, func(i, j int) bool {
		if byLevel[i].Level != byLevel[j].Level {
			return byLevel[i].Level > byLevel[j].Level
		}
		return byLevel[i].TotalXP > byLevel[j].TotalXP
	})
	for i, u := range head(byLevel, limits.Level) {
		rank := i + 1
		claim(u).RankLevel = &rank
	}

	return entries
}

func head(users []user.User, n int) []user.User {
	if n < 0 {
		n = 0
	}
	if len(users) > n {
		return users[:n]
	}
	return users
}
