package vote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/redis/go-redis/v9"
)

// TalliesKey 是一个 Redis Hash 的键，存储每条录音的赞踩计数。
// Field: 录音ID
// Value: Tally 的JSON序列化字符串
const TalliesKey = "vote:tallies"

// tallyCache 封装了对 TalliesKey 的读写。
type tallyCache struct {
	rdb *redis.Client
}

// get 读取一条录音的缓存计数。缓存中没有时 ok 为 false。
func (c tallyCache) get(ctx context.Context, recordID string) (Tally, bool, error) {
	raw, err := c.rdb.HGet(ctx, TalliesKey, recordID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Tally{}, false, nil
		}
		return Tally{}, false, err
	}
	var t Tally
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Tally{}, false, fmt.Errorf("无法解析录音 %s 的缓存计数: %w", recordID, err)
	}
	return t, true, nil
}

func (c tallyCache) set(ctx context.Context, recordID string, t Tally) error {
	raw, _ := json.Marshal(t)
	return c.rdb.HSet(ctx, TalliesKey, recordID, raw).Err()
}

// rebuild 用数据库中的计数整体替换缓存。
func (c tallyCache) rebuild(ctx context.Context, records []recording.DialectRecord) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, TalliesKey)
	if len(records) > 0 {
		values := make([]interface{}, 0, len(records)*2)
		for _, r := range records {
			raw, _ := json.Marshal(Tally{Up: r.Upvotes, Down: r.Downvotes})
			values = append(values, r.ID, raw)
		}
		pipe.HSet(ctx, TalliesKey, values...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
