package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 决策流水表 每次管道调用落一行，是复盘和审计的事实来源
type Decision struct {
	ID         uint   `gorm:"primarykey"`
	DecisionID string `gorm:"column:decision_id;size:32;uniqueIndex"`
	TenantID   string `gorm:"column:tenant_id;size:64;index:idx_tenant_time"`
	Symbol     string `gorm:"column:symbol;size:32;index"`
	Regime     string `gorm:"column:regime;size:16"`
	Approved   bool   `gorm:"column:approved"`

	// 拒绝原因（放行时为空）
	RejectCode   string `gorm:"column:reject_code;size:64"`
	RejectDetail string `gorm:"column:reject_detail;size:512"`

	// 放行信号与定仓明细 保留完整结构方便重放
	Signal datatypes.JSON `gorm:"column:signal"`
	Gates  datatypes.JSON `gorm:"column:gates"`
	Sizing datatypes.JSON `gorm:"column:sizing"`

	Contracts int       `gorm:"column:contracts"`
	Strategy  string    `gorm:"column:strategy;size:64"`
	DecidedAt time.Time `gorm:"column:decided_at;index:idx_tenant_time"`

	CreatedAt time.Time
}

func (Decision) TableName() string {
	return "qg_decision"
}

// 成交流水表 幂等键唯一索引兜底，重复回报插不进来
type Fill struct {
	ID             uint      `gorm:"primarykey"`
	OrderID        string    `gorm:"column:order_id;size:64;uniqueIndex:idx_order_exec"`
	ExecutionID    string    `gorm:"column:execution_id;size:64;uniqueIndex:idx_order_exec"`
	TenantID       string    `gorm:"column:tenant_id;size:64;index"`
	Symbol         string    `gorm:"column:symbol;size:32"`
	RealizedR      float64   `gorm:"column:realized_r"`
	EntrySlipTicks float64   `gorm:"column:entry_slip_ticks"`
	ExitSlipTicks  float64   `gorm:"column:exit_slip_ticks"`
	ClosedAt       time.Time `gorm:"column:closed_at"`

	CreatedAt time.Time
}

func (Fill) TableName() string {
	return "qg_fill"
}
