// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowiq/flowiq/pkg/model"
)

// ScheduleSnapshot 计划快照记录，按 (schedule_id, version) 只追加存储
type ScheduleSnapshot struct {
	ScheduleID  uuid.UUID `json:"schedule_id"`
	Version     int       `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	FrozenUntil time.Time `json:"frozen_until"`
	Placements  []model.Placement `json:"placements"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScheduleRepositoryInterface 计划快照仓储接口
type ScheduleRepositoryInterface interface {
	SaveSnapshot(ctx context.Context, sched *model.Schedule) error
	GetSnapshot(ctx context.Context, scheduleID uuid.UUID, version int) (*model.Schedule, error)
	GetLatest(ctx context.Context, scheduleID uuid.UUID) (*model.Schedule, error)
	ListVersions(ctx context.Context, scheduleID uuid.UUID) ([]int, error)
}

// ScheduleRepository 计划快照仓储实现
type ScheduleRepository struct {
	db DB
}

// NewScheduleRepository 创建计划快照仓储
func NewScheduleRepository(db DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// SaveSnapshot 保存计划快照；同一 (schedule_id, version) 不可覆盖
func (r *ScheduleRepository) SaveSnapshot(ctx context.Context, sched *model.Schedule) error {
	placements := sched.Sorted()
	placementsJSON, err := json.Marshal(placements)
	if err != nil {
		return fmt.Errorf("序列化计划快照失败: %w", err)
	}

	query := `
		INSERT INTO schedule_snapshots (schedule_id, version, generated_at, frozen_until, placements, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		sched.ID, sched.Version, sched.GeneratedAt, sched.FrozenUntil, placementsJSON, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("保存计划快照失败: %w", err)
	}

	return nil
}

// GetSnapshot 按版本获取计划快照
func (r *ScheduleRepository) GetSnapshot(ctx context.Context, scheduleID uuid.UUID, version int) (*model.Schedule, error) {
	query := `
		SELECT schedule_id, version, generated_at, frozen_until, placements
		FROM schedule_snapshots
		WHERE schedule_id = $1 AND version = $2
	`

	return r.scanSchedule(r.db.QueryRowContext(ctx, query, scheduleID, version))
}

// GetLatest 获取最新版本的计划快照
func (r *ScheduleRepository) GetLatest(ctx context.Context, scheduleID uuid.UUID) (*model.Schedule, error) {
	query := `
		SELECT schedule_id, version, generated_at, frozen_until, placements
		FROM schedule_snapshots
		WHERE schedule_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	return r.scanSchedule(r.db.QueryRowContext(ctx, query, scheduleID))
}

// ListVersions 列出计划的全部版本号
func (r *ScheduleRepository) ListVersions(ctx context.Context, scheduleID uuid.UUID) ([]int, error) {
	query := `
		SELECT version FROM schedule_snapshots
		WHERE schedule_id = $1
		ORDER BY version ASC
	`

	rows, err := r.db.QueryContext(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("查询计划版本失败: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("扫描计划版本失败: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, nil
}

// scanSchedule 扫描单行计划快照
func (r *ScheduleRepository) scanSchedule(row *sql.Row) (*model.Schedule, error) {
	sched := &model.Schedule{}
	var placementsJSON []byte

	err := row.Scan(&sched.ID, &sched.Version, &sched.GeneratedAt, &sched.FrozenUntil, &placementsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描计划快照失败: %w", err)
	}

	var placements []model.Placement
	if err := json.Unmarshal(placementsJSON, &placements); err != nil {
		return nil, fmt.Errorf("反序列化计划快照失败: %w", err)
	}

	sched.Placements = make(map[string]model.Placement, len(placements))
	for _, p := range placements {
		sched.Set(p)
	}

	return sched, nil
}
