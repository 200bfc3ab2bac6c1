// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flowiq/flowiq/pkg/model"
)

// AlertRepositoryInterface 异常告警仓储接口
type AlertRepositoryInterface interface {
	Upsert(ctx context.Context, alert *model.Alert) error
	UpsertBatch(ctx context.Context, alerts []*model.Alert) error
	GetByKey(ctx context.Context, key string) (*model.Alert, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	List(ctx context.Context, filter ListFilter) ([]*model.Alert, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, alert *model.Alert) error
}

// AlertRepository 异常告警仓储实现
type AlertRepository struct {
	db DB
}

// NewAlertRepository 创建告警仓储
func NewAlertRepository(db DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Upsert 按告警键写入；已存在时刷新内容但保留处理状态
func (r *AlertRepository) Upsert(ctx context.Context, alert *model.Alert) error {
	workOrdersJSON, _ := json.Marshal(alert.WorkOrderIDs)

	query := `
		INSERT INTO alerts (
			id, alert_key, alert_type, severity, title, description,
			work_order_ids, resource_id, status, generated_at, acked_at, resolved_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (alert_key) DO UPDATE SET
			severity = EXCLUDED.severity,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			work_order_ids = EXCLUDED.work_order_ids,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.Key, alert.Type, alert.Severity, alert.Title, alert.Description,
		workOrdersJSON, alert.ResourceID, alert.Status, alert.GeneratedAt, alert.AckedAt, alert.ResolvedAt,
		alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入告警失败: %w", err)
	}

	return nil
}

// UpsertBatch 批量写入告警
func (r *AlertRepository) UpsertBatch(ctx context.Context, alerts []*model.Alert) error {
	for _, a := range alerts {
		if err := r.Upsert(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// GetByKey 按告警键获取
func (r *AlertRepository) GetByKey(ctx context.Context, key string) (*model.Alert, error) {
	query := selectAlert + " WHERE alert_key = $1"
	return r.scanAlert(r.db.QueryRowContext(ctx, query, key))
}

// GetByID 按ID获取告警
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	query := selectAlert + " WHERE id = $1"
	return r.scanAlert(r.db.QueryRowContext(ctx, query, id))
}

// List 列出告警
func (r *AlertRepository) List(ctx context.Context, filter ListFilter) ([]*model.Alert, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}

	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argNum))
		args = append(args, filter.Severity)
		argNum++
	}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", argNum))
		args = append(args, filter.Type)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计告警数量失败: %w", err)
	}

	query := fmt.Sprintf("%s %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		selectAlert, whereClause, filter.OrderBy, filter.OrderDir, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询告警列表失败: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := r.scanAlertRow(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, a)
	}

	return alerts, total, nil
}

// UpdateStatus 更新告警处理状态
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, alert *model.Alert) error {
	query := `
		UPDATE alerts SET status = $2, acked_at = $3, resolved_at = $4, updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, alert.Status, alert.AckedAt, alert.ResolvedAt, alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("更新告警状态失败: %w", err)
	}

	return nil
}

const selectAlert = `
	SELECT id, alert_key, alert_type, severity, title, description,
		work_order_ids, resource_id, status, generated_at, acked_at, resolved_at,
		created_at, updated_at
	FROM alerts`

// scanAlert 扫描单行告警
func (r *AlertRepository) scanAlert(row *sql.Row) (*model.Alert, error) {
	a := &model.Alert{}
	var workOrdersJSON []byte

	err := row.Scan(
		&a.ID, &a.Key, &a.Type, &a.Severity, &a.Title, &a.Description,
		&workOrdersJSON, &a.ResourceID, &a.Status, &a.GeneratedAt, &a.AckedAt, &a.ResolvedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描告警失败: %w", err)
	}

	if len(workOrdersJSON) > 0 {
		json.Unmarshal(workOrdersJSON, &a.WorkOrderIDs)
	}

	return a, nil
}

// scanAlertRow 从多行结果扫描
func (r *AlertRepository) scanAlertRow(rows *sql.Rows) (*model.Alert, error) {
	a := &model.Alert{}
	var workOrdersJSON []byte

	err := rows.Scan(
		&a.ID, &a.Key, &a.Type, &a.Severity, &a.Title, &a.Description,
		&workOrdersJSON, &a.ResourceID, &a.Status, &a.GeneratedAt, &a.AckedAt, &a.ResolvedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("扫描告警失败: %w", err)
	}

	if len(workOrdersJSON) > 0 {
		json.Unmarshal(workOrdersJSON, &a.WorkOrderIDs)
	}

	return a, nil
}
