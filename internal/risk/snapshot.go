package risk

import (
	"context"

	"quantgate/internal/consts"
	"quantgate/internal/model"
	"quantgate/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// 风控快照镜像
// 每次记账后把RiskState写进redis，进程重启或外部系统要看风控水位时用。
// 镜像是尽力而为：写失败只记日志，权威数据永远在编排器内存里。

type SnapshotStore struct {
	rdb *redis.Client
}

func NewSnapshotStore(rdb *redis.Client) *SnapshotStore {
	return &SnapshotStore{rdb: rdb}
}

func (s *SnapshotStore) Save(ctx context.Context, rs model.RiskState) {
	if s == nil || s.rdb == nil {
		return
	}
	data, err := json.Marshal(rs)
	if err != nil {
		logger.Warnf("[risk] 风控快照序列化失败: %v", err)
		return
	}
	key := consts.RiskSnapshotPrefix + rs.TenantID
	if err := s.rdb.Set(ctx, key, data, consts.RedisExrDefault).Err(); err != nil {
		logger.Warnf("[risk] 风控快照写redis失败: %v", err)
	}
}

// Load 读回最近一次镜像 没有或redis不可用返回nil
func (s *SnapshotStore) Load(ctx context.Context, tenant string) *model.RiskState {
	if s == nil || s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, consts.RiskSnapshotPrefix+tenant).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("[risk] 风控快照读redis失败: %v", err)
		}
		return nil
	}
	var rs model.RiskState
	if err := json.Unmarshal(data, &rs); err != nil {
		logger.Warnf("[risk] 风控快照反序列化失败: %v", err)
		return nil
	}
	return &rs
}
