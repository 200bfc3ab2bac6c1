// Package model 定义排产引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// Priority 工单优先级
type Priority string

const (
	PriorityCritical Priority = "critical" // 紧急
	PriorityHigh     Priority = "high"     // 高
	PriorityMedium   Priority = "medium"   // 中
	PriorityLow      Priority = "low"      // 低
)

// Rank 返回优先级序号（越小越优先）
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid 检查优先级是否合法
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// Severity 告警严重级别
type Severity string

const (
	SeverityCritical Severity = "critical" // 严重
	SeverityWarning  Severity = "warning"  // 警告
	SeverityInfo     Severity = "info"     // 提示
)

// Rank 返回严重级别序号（越小越严重）
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TimeRange 时间范围，区间约定为 [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration 返回时间范围的持续时间
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Hours 返回时间范围的小时数
func (tr TimeRange) Hours() float64 {
	return tr.End.Sub(tr.Start).Hours()
}

// Overlaps 检查两个时间范围是否重叠
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Overlap 返回两个时间范围的重叠部分，无重叠时返回零值
func (tr TimeRange) Overlap(other TimeRange) TimeRange {
	if !tr.Overlaps(other) {
		return TimeRange{}
	}
	start := tr.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := tr.End
	if other.End.Before(end) {
		end = other.End
	}
	return TimeRange{Start: start, End: end}
}

// Contains 检查时间范围是否包含某个时间点
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// ContainsRange 检查时间范围是否完全包含另一个范围
func (tr TimeRange) ContainsRange(other TimeRange) bool {
	return !other.Start.Before(tr.Start) && !other.End.After(tr.End)
}

// IsZero 检查时间范围是否为零值
func (tr TimeRange) IsZero() bool {
	return tr.Start.IsZero() && tr.End.IsZero()
}

// KPISnapshot KPI 快照（对给定排产计划与工单集的一次性度量）
type KPISnapshot struct {
	OTIF          float64 `json:"otif"`            // 准时足量交付率 (%)
	Adherence     float64 `json:"adherence"`       // 计划执行率 (%)
	Throughput    float64 `json:"throughput"`      // 周产出（完工工单数）
	WIP           int     `json:"wip"`             // 在制工单数
	Utilization   float64 `json:"utilization"`     // 平均资源负荷率 (%)
	Tardiness     int     `json:"tardiness"`       // 拖期工单数
	MakespanHours float64 `json:"makespan_hours"`  // 总完工跨度（小时）
	AvgLeadTime   float64 `json:"avg_lead_time"`   // 平均制造周期（天）
}
