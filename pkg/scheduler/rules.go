// Package scheduler 提供有限产能正排调度器
package scheduler

import "github.com/flowiq/flowiq/pkg/model"

// Rule 软规则：带置信度权重参与候选资源打分
// 这是学习型约束子系统的挂接点：学习到的规则以版本化实体独立存储，
// 调度器只消费打分，不包含任何学习逻辑。
type Rule interface {
	// Name 返回规则名称
	Name() string

	// Confidence 返回置信度 (0-100)，作为打分权重
	Confidence() int

	// Score 对候选资源打分，正值表示偏好，负值表示回避
	Score(order *model.WorkOrder, op *model.Operation, resourceID string) float64
}

// PreferResourceRule 资源偏好规则：指定工艺能力优先使用某资源
type PreferResourceRule struct {
	RuleName   string `json:"name" yaml:"name"`
	Capability string `json:"capability" yaml:"capability"`
	ResourceID string `json:"resource_id" yaml:"resource_id"`
	Weight     int    `json:"confidence" yaml:"confidence"` // 0-100
}

// Name 返回规则名称
func (r *PreferResourceRule) Name() string { return r.RuleName }

// Confidence 返回置信度
func (r *PreferResourceRule) Confidence() int { return r.Weight }

// Score 对候选资源打分
func (r *PreferResourceRule) Score(_ *model.WorkOrder, op *model.Operation, resourceID string) float64 {
	if op.Capability != r.Capability {
		return 0
	}
	if resourceID == r.ResourceID {
		return 1
	}
	return 0
}

// AvoidResourceRule 资源回避规则：指定工单优先级回避某资源
type AvoidResourceRule struct {
	RuleName   string         `json:"name" yaml:"name"`
	ResourceID string         `json:"resource_id" yaml:"resource_id"`
	Priority   model.Priority `json:"priority,omitempty" yaml:"priority,omitempty"` // 空值对全部优先级生效
	Weight     int            `json:"confidence" yaml:"confidence"`
}

// Name 返回规则名称
func (r *AvoidResourceRule) Name() string { return r.RuleName }

// Confidence 返回置信度
func (r *AvoidResourceRule) Confidence() int { return r.Weight }

// Score 对候选资源打分
func (r *AvoidResourceRule) Score(order *model.WorkOrder, _ *model.Operation, resourceID string) float64 {
	if resourceID != r.ResourceID {
		return 0
	}
	if r.Priority != "" && order.Priority != r.Priority {
		return 0
	}
	return -1
}

// ruleScore 计算候选资源的加权软规则总分
func ruleScore(rules []Rule, order *model.WorkOrder, op *model.Operation, resourceID string) float64 {
	var total float64
	for _, r := range rules {
		total += r.Score(order, op, resourceID) * float64(r.Confidence()) / 100.0
	}
	return total
}
