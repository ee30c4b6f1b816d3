package achievement

// Metric 是成就解锁所依据的统计指标。
type Metric string

const (
	MetricTotalRecordings  Metric = "total_recordings"
	MetricCurrentStreak    Metric = "current_streak"
	MetricUpvotesReceived  Metric = "upvotes_received"
	MetricDistinctDialects Metric = "distinct_dialects"
	MetricLevel            Metric = "level"
	MetricReviewsApproved  Metric = "reviews_approved"
	MetricTodayRecordings  Metric = "today_recordings"
	// MetricSpecial 的成就只能被手动授予，从不自动评估。
	MetricSpecial Metric = "special"
)

// Definition 描述一个成就。只包含数据，展示文案由客户端根据 key 查找。
type Definition struct {
	ID             string `json:"id"`
	Metric         Metric `json:"metric"`
	Threshold      int    `json:"threshold"`
	NameKey        string `json:"name_key"`
	DescriptionKey string `json:"description_key"`
	Honor          bool   `json:"honor"`
}

func def(id string, metric Metric, threshold int, honor bool) Definition {
	return Definition{
		ID:             id,
		Metric:         metric,
		Threshold:      threshold,
		NameKey:        "achievement." + id + ".name",
		DescriptionKey: "achievement." + id + ".description",
		Honor:          honor,
	}
}

// catalog 是有序的成就表，评估和展示都按这个顺序进行。
var catalog = []Definition{
	def("first_recording", MetricTotalRecordings, 1, false),
	def("getting_started", MetricTotalRecordings, 5, false),
	def("dedicated_contributor", MetricTotalRecordings, 10, false),
	def("milestone_25", MetricTotalRecordings, 25, false),
	def("milestone_50", MetricTotalRecordings, 50, false),
	def("milestone_100", MetricTotalRecordings, 100, false),
	def("milestone_200", MetricTotalRecordings, 200, false),
	def("milestone_500", MetricTotalRecordings, 500, false),
	def("milestone_1000", MetricTotalRecordings, 1000, false),
	def("week_streak", MetricCurrentStreak, 7, true),
	def("month_streak", MetricCurrentStreak, 30, false),
	def("reviewer_unlock", MetricSpecial, 1, true),
	def("community_helper", MetricReviewsApproved, 50, false),
	def("dialect_explorer", MetricDistinctDialects, 3, true),
	def("quality_master", MetricUpvotesReceived, 100, true),
	def("speed_demon", MetricTodayRecordings, 10, false),
	def("legend", MetricLevel, 20, true),
}

// ReviewerUnlockID 是授予审核员身份时一并授予的特殊成就。
const ReviewerUnlockID = "reviewer_unlock"

// Catalog 返回成就表的副本。
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup 按ID查找成就定义。
func Lookup(id string) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}
