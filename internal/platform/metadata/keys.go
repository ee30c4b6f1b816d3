package metadata

// --- SQLite Keys ---
// 这些键用于 metadata 表的 key 列。
const (
	// LeaderboardLastUpdatedKey 记录最近一次排行榜成功替换的时间 (RFC3339)。
	LeaderboardLastUpdatedKey = "leaderboard_last_updated"

	// LeaderboardEntryCountKey 记录最近一次替换写入的条目数。
	LeaderboardEntryCountKey = "leaderboard_entry_count"

	// LeaderboardTruncatedKey 记录最近一次聚合是否因分页上限而截断了输入。
	LeaderboardTruncatedKey = "leaderboard_last_truncated"

	// LeaderboardAutoRefreshKey 记录管理员设置的自动刷新开关，重启后据此恢复。
	LeaderboardAutoRefreshKey = "leaderboard_auto_refresh"
)
