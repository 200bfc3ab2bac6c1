// Package model 定义排产引擎的核心数据模型
package model

import "time"

// PromiseStatus 承诺请求状态
type PromiseStatus string

const (
	PromisePending   PromiseStatus = "pending"   // 待定
	PromiseCommitted PromiseStatus = "committed" // 已承诺
)

// ATPResult 可承诺量检查结果（只看现行计划，不插入新需求）
type ATPResult struct {
	Available  bool      `json:"available"`
	Date       time.Time `json:"date"`       // 扫描到的最早可交付日期
	Confidence int       `json:"confidence"` // 0-100，由剩余裕量与波动推算
}

// CTPResult 可生产承诺检查结果（克隆计划插入需求试排）
type CTPResult struct {
	Feasible           bool      `json:"feasible"`
	Date               time.Time `json:"date"` // 试排得到的最早完工日期
	RequiresOvertime   bool      `json:"requires_overtime"`
	AffectedWorkOrders []string  `json:"affected_work_orders,omitempty"` // 起止时间被挤动的既有工单
}

// PromiseRequest 交付承诺请求
type PromiseRequest struct {
	BaseModel
	Customer      string        `json:"customer"`
	Product       string        `json:"product"`
	Quantity      int           `json:"quantity"`
	RequestedDate time.Time     `json:"requested_date"`
	ATP           *ATPResult    `json:"atp,omitempty"`
	CTP           *CTPResult    `json:"ctp,omitempty"`
	Status        PromiseStatus `json:"status"`
}

// RoutingTemplate 产品工艺路线模板（主数据，CTP 试排时按数量合成工序）
type RoutingTemplate struct {
	Product string        `json:"product" yaml:"product"`
	Steps   []RoutingStep `json:"steps" yaml:"steps"`
}

// RoutingStep 路线模板中的一道工序
type RoutingStep struct {
	Name         string  `json:"name" yaml:"name"`
	Capability   string  `json:"capability" yaml:"capability"`
	FixedHours   float64 `json:"fixed_hours" yaml:"fixed_hours"`       // 固定准备时长
	HoursPerUnit float64 `json:"hours_per_unit" yaml:"hours_per_unit"` // 单件时长
}

// HoursFor 返回指定数量下该工序的总时长
func (s RoutingStep) HoursFor(quantity int) float64 {
	return s.FixedHours + s.HoursPerUnit*float64(quantity)
}
