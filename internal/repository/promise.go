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

// PromiseRepositoryInterface 交期承诺仓储接口
type PromiseRepositoryInterface interface {
	Create(ctx context.Context, req *model.PromiseRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PromiseRequest, error)
	Update(ctx context.Context, req *model.PromiseRequest) error
	List(ctx context.Context, filter ListFilter) ([]*model.PromiseRequest, int, error)
}

// PromiseRepository 交期承诺仓储实现
type PromiseRepository struct {
	db DB
}

// NewPromiseRepository 创建承诺仓储
func NewPromiseRepository(db DB) *PromiseRepository {
	return &PromiseRepository{db: db}
}

// Create 保存承诺查询记录
func (r *PromiseRepository) Create(ctx context.Context, req *model.PromiseRequest) error {
	atpJSON, ctpJSON := marshalPromise(req)

	query := `
		INSERT INTO promise_requests (
			id, customer, product, quantity, requested_date, atp, ctp, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Customer, req.Product, req.Quantity, req.RequestedDate,
		atpJSON, ctpJSON, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存承诺记录失败: %w", err)
	}

	return nil
}

// GetByID 按ID获取承诺记录
func (r *PromiseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PromiseRequest, error) {
	query := selectPromise + " WHERE id = $1"
	return r.scanPromise(r.db.QueryRowContext(ctx, query, id))
}

// Update 更新承诺记录（CTP 结果或提交状态）
func (r *PromiseRepository) Update(ctx context.Context, req *model.PromiseRequest) error {
	atpJSON, ctpJSON := marshalPromise(req)

	query := `
		UPDATE promise_requests SET atp = $2, ctp = $3, status = $4, updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, req.ID, atpJSON, ctpJSON, req.Status, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("更新承诺记录失败: %w", err)
	}

	return nil
}

// List 列出承诺记录
func (r *PromiseRepository) List(ctx context.Context, filter ListFilter) ([]*model.PromiseRequest, int, error) {
	whereClause := ""
	var args []interface{}
	argNum := 1

	if filter.Status != "" {
		whereClause = fmt.Sprintf("WHERE status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM promise_requests %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计承诺数量失败: %w", err)
	}

	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectPromise, whereClause, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询承诺列表失败: %w", err)
	}
	defer rows.Close()

	var reqs []*model.PromiseRequest
	for rows.Next() {
		p := &model.PromiseRequest{}
		if err := scanPromiseInto(rows, p); err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, p)
	}

	return reqs, total, nil
}

const selectPromise = `
	SELECT id, customer, product, quantity, requested_date, atp, ctp, status,
		created_at, updated_at
	FROM promise_requests`

// marshalPromise 序列化 ATP/CTP 结果
func marshalPromise(req *model.PromiseRequest) ([]byte, []byte) {
	var atpJSON, ctpJSON []byte
	if req.ATP != nil {
		atpJSON, _ = json.Marshal(req.ATP)
	}
	if req.CTP != nil {
		ctpJSON, _ = json.Marshal(req.CTP)
	}
	return atpJSON, ctpJSON
}

// scanPromise 扫描单行承诺记录
func (r *PromiseRepository) scanPromise(row *sql.Row) (*model.PromiseRequest, error) {
	p := &model.PromiseRequest{}
	var atpJSON, ctpJSON []byte

	err := row.Scan(
		&p.ID, &p.Customer, &p.Product, &p.Quantity, &p.RequestedDate,
		&atpJSON, &ctpJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描承诺记录失败: %w", err)
	}

	unmarshalPromise(p, atpJSON, ctpJSON)
	return p, nil
}

// scanPromiseInto 从多行结果扫描
func scanPromiseInto(rows *sql.Rows, p *model.PromiseRequest) error {
	var atpJSON, ctpJSON []byte

	err := rows.Scan(
		&p.ID, &p.Customer, &p.Product, &p.Quantity, &p.RequestedDate,
		&atpJSON, &ctpJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("扫描承诺记录失败: %w", err)
	}

	unmarshalPromise(p, atpJSON, ctpJSON)
	return nil
}

// unmarshalPromise 反序列化 ATP/CTP 结果
func unmarshalPromise(p *model.PromiseRequest, atpJSON, ctpJSON []byte) {
	if len(atpJSON) > 0 {
		p.ATP = &model.ATPResult{}
		json.Unmarshal(atpJSON, p.ATP)
	}
	if len(ctpJSON) > 0 {
		p.CTP = &model.CTPResult{}
		json.Unmarshal(ctpJSON, p.CTP)
	}
}
