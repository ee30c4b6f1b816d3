package user

import (
	"time"

	"github.com/jinzhu/now"
)

// DateLayout 是 LastContributionDate 的格式。
const DateLayout = "2006-01-02"

// CalendarDate 返回 t 在 loc 时区下的日历日期。
func CalendarDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// AdvanceStreak 根据上次贡献日期推进连续贡献天数。
// 同一天不变；上次是前一天则加一；其他情况(包括从未贡献)重置为1。
func AdvanceStreak(lastDate string, current int, at time.Time, loc *time.Location) (streak int, date string) {
	today := now.New(at.In(loc)).BeginningOfDay()
	date = today.Format(DateLayout)

	if lastDate == "" {
		return 1, date
	}
	last, err := time.ParseInLocation(DateLayout, lastDate, loc)
	if err != nil {
		return 1, date
	}

	switch {
	case last.Equal(today):
		if current < 1 {
			current = 1
		}
		return current, date
	case last.Equal(today.AddDate(0, 0, -1)):
		return current + 1, date
	default:
		return 1, date
	}
}
