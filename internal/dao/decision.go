package dao

import (
	"context"
	"time"

	"quantgate/internal/model"
	"quantgate/internal/model/entity"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
)

type DecisionDao interface {
	// 落一条决策流水
	SaveDecision(ctx context.Context, dec *model.Decision) error
	// 最近N条决策（状态查询接口用）
	RecentDecisions(ctx context.Context, tenant string, limit int) ([]entity.Decision, error)
	// 按时间范围查某租户某品种的决策
	DecisionsByTimeRange(ctx context.Context, tenant, symbol string, start, end time.Time) ([]entity.Decision, error)
	// 落一条成交流水 重复回报返回已存在
	SaveFill(ctx context.Context, fill model.Fill) error
	// 放行率统计
	ApprovalRate(ctx context.Context, tenant string, since time.Time) (float64, error)
}

type decisionDao struct {
	db *gorm.DB
}

func NewDecisionDao(db *gorm.DB) DecisionDao {
	return &decisionDao{db: db}
}

func (d *decisionDao) SaveDecision(ctx context.Context, dec *model.Decision) error {
	row := entity.Decision{
		DecisionID:   dec.ID,
		TenantID:     dec.TenantID,
		Symbol:       dec.Symbol,
		Regime:       dec.Regime.String(),
		Approved:     dec.Approved,
		RejectCode:   string(dec.RejectCode),
		RejectDetail: dec.RejectDetail,
		DecidedAt:    dec.Timestamp,
	}
	if dec.Signal != nil {
		row.Contracts = dec.Signal.Contracts
		row.Strategy = dec.Signal.Strategy
		if data, err := json.Marshal(dec.Signal); err == nil {
			row.Signal = data
		}
	}
	if data, err := json.Marshal(dec.Gates); err == nil {
		row.Gates = data
	}
	if dec.Sizing != nil {
		if data, err := json.Marshal(dec.Sizing); err == nil {
			row.Sizing = data
		}
	}
	return d.db.WithContext(ctx).Create(&row).Error
}

func (d *decisionDao) RecentDecisions(ctx context.Context, tenant string, limit int) ([]entity.Decision, error) {
	var rows []entity.Decision
	err := d.db.WithContext(ctx).
		Where("tenant_id = ?", tenant).
		Order("decided_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (d *decisionDao) DecisionsByTimeRange(ctx context.Context, tenant, symbol string, start, end time.Time) ([]entity.Decision, error) {
	var rows []entity.Decision
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND symbol = ? AND decided_at BETWEEN ? AND ?", tenant, symbol, start, end).
		Order("decided_at ASC").
		Find(&rows).Error
	return rows, err
}

func (d *decisionDao) SaveFill(ctx context.Context, fill model.Fill) error {
	row := entity.Fill{
		OrderID:        fill.OrderID,
		ExecutionID:    fill.ExecutionID,
		TenantID:       fill.TenantID,
		Symbol:         fill.Symbol,
		RealizedR:      fill.RealizedR,
		EntrySlipTicks: fill.EntrySlipTicks,
		ExitSlipTicks:  fill.ExitSlipTicks,
		ClosedAt:       fill.ClosedAt,
	}
	return d.db.WithContext(ctx).Create(&row).Error
}

func (d *decisionDao) ApprovalRate(ctx context.Context, tenant string, since time.Time) (float64, error) {
	var total, approved int64
	q := d.db.WithContext(ctx).Model(&entity.Decision{}).
		Where("tenant_id = ? AND decided_at >= ?", tenant, since)
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if err := q.Where("approved = ?", true).Count(&approved).Error; err != nil {
		return 0, err
	}
	return float64(approved) / float64(total), nil
}
