package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// --- Redis Keys ---
const (
	// EntriesKey 是一个 Redis Hash 的键，存储所有排行榜条目。
	// Field: 用户ID
	// Value: Entry 的JSON序列化字符串
	EntriesKey = "leaderboard:entries"

	// rankKeyPrefix 加上榜单维度组成一个 Redis ZSET 的键。
	// Member: 用户ID
	// Score: 名次 (越小越靠前)
	rankKeyPrefix = "leaderboard:rank:"
)

// RankKey 返回某个榜单维度的 ZSET 键。
func RankKey(k Kind) string {
	return rankKeyPrefix + string(k)
}

// mirror 是排行榜在Redis中的只读镜像。
type mirror struct {
	rdb *redis.Client
}

// rebuild 用给定的条目整体替换镜像。
func (m mirror) rebuild(ctx context.Context, entries []Entry) error {
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, EntriesKey)
	for _, k := range Kinds() {
		pipe.Del(ctx, RankKey(k))
	}

	if len(entries) > 0 {
		fields := make([]interface{}, 0, len(entries)*2)
		ranks := make(map[Kind][]redis.Z)
		for _, e := range entries {
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("无法序列化用户 %s 的排行榜条目: %w", e.UserID, err)
			}
			fields = append(fields, e.UserID, raw)
			for _, k := range Kinds() {
				if r := e.Rank(k); r != nil {
					ranks[k] = append(ranks[k], redis.Z{Score: float64(*r), Member: e.UserID})
				}
			}
		}
		pipe.HSet(ctx, EntriesKey, fields...)
		for k, zs := range ranks {
			pipe.ZAdd(ctx, RankKey(k), zs...)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// board 按名次读取一个榜单。
func (m mirror) board(ctx context.Context, k Kind) ([]Entry, error) {
	ids, err := m.rdb.ZRange(ctx, RankKey(k), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	raws, err := m.rdb.HMGet(ctx, EntriesKey, ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("镜像不一致: 找不到用户 %s 的条目", ids[i])
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("无法解析用户 %s 的排行榜条目: %w", ids[i], err)
		}
		out = append(out, e)
	}
	return out, nil
}
