package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId = "request_id"

	// webhook验签请求头
	SignatureHeader = "X-Signature"

	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02 15:04:05"

	// 默认redis过期时间
	RedisExrDefault = time.Hour * 24
)

// redis key前缀
const (
	FillDedupPrefix    = "qg:fill:"
	RiskSnapshotPrefix = "qg:risk:"
)

// kafka消费组
const (
	FillConsumerGroup = "quantgate-fills"
)
