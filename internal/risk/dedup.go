package risk

import (
	"context"
	"sync"
	"time"

	"quantgate/internal/consts"
	"quantgate/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// 成交回报去重
// 执行边界可能重发ack，同一笔(orderId, executionId)只能记一次盈亏。
// 进程内用map判定，redis SETNX做跨重启的镜像；redis不可用时退化为纯内存。

const dedupTTL = 24 * time.Hour

type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	rdb  *redis.Client
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{
		seen: make(map[string]struct{}),
		rdb:  rdb,
	}
}

// FirstSeen 第一次见到返回true，重复返回false
func (d *Deduper) FirstSeen(ctx context.Context, key string) bool {
	d.mu.Lock()
	_, dup := d.seen[key]
	if !dup {
		d.seen[key] = struct{}{}
	}
	d.mu.Unlock()

	if dup {
		return false
	}

	if d.rdb == nil {
		return true
	}

	// redis镜像覆盖进程重启的场景
	ok, err := d.rdb.SetNX(ctx, consts.FillDedupPrefix+key, 1, dedupTTL).Result()
	if err != nil {
		// 镜像失败只记日志，内存判定已经给了答案
		logger.Warnf("[risk] fill去重redis镜像失败: %v", err)
		return true
	}
	return ok
}
