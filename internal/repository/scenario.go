// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowiq/flowiq/pkg/model"
)

// ScenarioRepositoryInterface 模拟场景仓储接口
type ScenarioRepositoryInterface interface {
	Create(ctx context.Context, scenario *model.Scenario) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Scenario, error)
	List(ctx context.Context, filter ListFilter) ([]*model.Scenario, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ScenarioStatus) error
}

// ScenarioRepository 模拟场景仓储实现
type ScenarioRepository struct {
	db DB
}

// NewScenarioRepository 创建场景仓储
func NewScenarioRepository(db DB) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

// Create 保存已计算的场景；KPI 快照随场景一起落库且不再修改
func (r *ScenarioRepository) Create(ctx context.Context, scenario *model.Scenario) error {
	deltasJSON, _ := json.Marshal(scenario.Deltas)
	var kpisJSON []byte
	if scenario.KPIs != nil {
		kpisJSON, _ = json.Marshal(scenario.KPIs)
	}

	query := `
		INSERT INTO scenarios (
			id, name, base_schedule_id, base_version, deltas, status,
			kpis, computed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		scenario.ID, scenario.Name, scenario.BaseScheduleID, scenario.BaseVersion,
		deltasJSON, scenario.Status, kpisJSON, scenario.ComputedAt,
		scenario.CreatedAt, scenario.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存场景失败: %w", err)
	}

	return nil
}

// GetByID 按ID获取场景
func (r *ScenarioRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Scenario, error) {
	query := selectScenario + " WHERE id = $1"
	return r.scanScenario(r.db.QueryRowContext(ctx, query, id))
}

// List 列出场景
func (r *ScenarioRepository) List(ctx context.Context, filter ListFilter) ([]*model.Scenario, int, error) {
	whereClause := ""
	var args []interface{}
	argNum := 1

	if filter.Status != "" {
		whereClause = fmt.Sprintf("WHERE status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM scenarios %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计场景数量失败: %w", err)
	}

	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectScenario, whereClause, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询场景列表失败: %w", err)
	}
	defer rows.Close()

	var scenarios []*model.Scenario
	for rows.Next() {
		s := &model.Scenario{}
		if err := r.scanScenarioInto(rows, s); err != nil {
			return nil, 0, err
		}
		scenarios = append(scenarios, s)
	}

	return scenarios, total, nil
}

// UpdateStatus 更新场景状态（提升/废弃）；KPI 与增量内容不可变
func (r *ScenarioRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ScenarioStatus) error {
	query := `UPDATE scenarios SET status = $2, updated_at = now() WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("更新场景状态失败: %w", err)
	}

	return nil
}

const selectScenario = `
	SELECT id, name, base_schedule_id, base_version, deltas, status,
		kpis, computed_at, created_at, updated_at
	FROM scenarios`

// scanScenario 扫描单行场景
func (r *ScenarioRepository) scanScenario(row *sql.Row) (*model.Scenario, error) {
	s := &model.Scenario{}
	var deltasJSON, kpisJSON []byte

	err := row.Scan(
		&s.ID, &s.Name, &s.BaseScheduleID, &s.BaseVersion, &deltasJSON, &s.Status,
		&kpisJSON, &s.ComputedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描场景失败: %w", err)
	}

	if err := json.Unmarshal(deltasJSON, &s.Deltas); err != nil {
		return nil, fmt.Errorf("反序列化场景增量失败: %w", err)
	}
	if len(kpisJSON) > 0 {
		s.KPIs = &model.KPISnapshot{}
		json.Unmarshal(kpisJSON, s.KPIs)
	}

	return s, nil
}

// scanScenarioInto 从多行结果扫描
func (r *ScenarioRepository) scanScenarioInto(rows *sql.Rows, s *model.Scenario) error {
	var deltasJSON, kpisJSON []byte

	err := rows.Scan(
		&s.ID, &s.Name, &s.BaseScheduleID, &s.BaseVersion, &deltasJSON, &s.Status,
		&kpisJSON, &s.ComputedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("扫描场景失败: %w", err)
	}

	if err := json.Unmarshal(deltasJSON, &s.Deltas); err != nil {
		return fmt.Errorf("反序列化场景增量失败: %w", err)
	}
	if len(kpisJSON) > 0 {
		s.KPIs = &model.KPISnapshot{}
		json.Unmarshal(kpisJSON, s.KPIs)
	}

	return nil
}
