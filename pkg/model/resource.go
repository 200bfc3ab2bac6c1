// Package model 定义排产引擎的核心数据模型
package model

// ResourceType 资源类型
type ResourceType string

const (
	ResourceMachine ResourceType = "machine" // 机床
	ResourceCell    ResourceType = "cell"    // 工作单元
	ResourceLine    ResourceType = "line"    // 产线
	ResourceStation ResourceType = "station" // 工位
)

// ResourceStatus 资源状态
type ResourceStatus string

const (
	ResourceRunning    ResourceStatus = "running"    // 运行中
	ResourceDown       ResourceStatus = "down"       // 停机
	ResourceChangeover ResourceStatus = "changeover" // 换型中
)

// Resource 生产资源（主数据，引擎只读）
type Resource struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Type          ResourceType   `json:"type" yaml:"type"`
	Department    string         `json:"department" yaml:"department"`
	Capability    string         `json:"capability" yaml:"capability"`           // 工艺能力，如 turning/milling/welding
	CapacityHours float64        `json:"capacity_hours" yaml:"capacity_hours"`   // 每日标称产能（小时）
	Status        ResourceStatus `json:"status" yaml:"status"`
	Downtime      []TimeRange    `json:"downtime,omitempty" yaml:"downtime,omitempty"` // 停机/换型时段
}

// IsDown 检查资源在指定时段内是否处于停机
func (r *Resource) IsDown(window TimeRange) bool {
	if r.Status != ResourceDown && r.Status != ResourceChangeover {
		return false
	}
	for _, d := range r.Downtime {
		if d.Overlaps(window) {
			return true
		}
	}
	return false
}

// DowntimeOverlap 返回与指定时段重叠的停机区间
func (r *Resource) DowntimeOverlap(window TimeRange) []TimeRange {
	var out []TimeRange
	for _, d := range r.Downtime {
		if d.Overlaps(window) {
			out = append(out, d.Overlap(window))
		}
	}
	return out
}

// HasCapability 检查资源是否具备指定工艺能力
func (r *Resource) HasCapability(capability string) bool {
	return r.Capability == capability
}

// Validate 校验资源主数据
func (r *Resource) Validate() error {
	if r.ID == "" {
		return errInvalid("资源ID不能为空")
	}
	if r.CapacityHours < 0 {
		return errInvalid("资源产能不能为负数")
	}
	if r.Capability == "" {
		return errInvalid("资源必须声明工艺能力")
	}
	return nil
}
