package achievement

// Stats 是评估成就时用户的统计快照。每个非 special 指标对应一个字段。
type Stats struct {
	TotalRecordings  int `json:"total_recordings"`
	CurrentStreak    int `json:"current_streak"`
	UpvotesReceived  int `json:"upvotes_received"`
	DistinctDialects int `json:"distinct_dialects"`
	Level            int `json:"level"`
	ReviewsApproved  int `json:"reviews_approved"`
	TodayRecordings  int `json:"today_recordings"`
}

// Value 返回某个指标的值。special 指标没有值。
func (s Stats) Value(m Metric) (int, bool) {
	switch m {
	case MetricTotalRecordings:
		return s.TotalRecordings, true
	case MetricCurrentStreak:
		return s.CurrentStreak, true
	case MetricUpvotesReceived:
		return s.UpvotesReceived, true
	case MetricDistinctDialects:
		return s.DistinctDialects, true
	case MetricLevel:
		return s.Level, true
	case MetricReviewsApproved:
		return s.ReviewsApproved, true
	case MetricTodayRecordings:
		return s.TodayRecordings, true
	default:
		return 0, false
	}
}

// Evaluate 按成就表顺序返回新满足条件、且尚未解锁的成就ID。
// 对同一个已解锁集合重复调用得到相同结果。
func Evaluate(stats Stats, unlocked map[string]bool) []string {
	var eligible []string
	for _, d := range catalog {
		if unlocked[d.ID] {
			continue
		}
		v, ok := stats.Value(d.Metric)
		if !ok {
			continue
		}
		if v >= d.Threshold {
			eligible = append(eligible, d.ID)
		}
	}
	return eligible
}
