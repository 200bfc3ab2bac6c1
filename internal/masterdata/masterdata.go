// Package masterdata 提供主数据装载与注册
package masterdata

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flowiq/flowiq/internal/config"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

// SoftRule 软规则配置项
type SoftRule struct {
	Type       string         `yaml:"type"` // prefer-resource/avoid-resource
	Name       string         `yaml:"name"`
	ResourceID string         `yaml:"resource_id"`
	Capability string         `yaml:"capability,omitempty"`
	Priority   model.Priority `yaml:"priority,omitempty"`
	Confidence int            `yaml:"confidence"` // 0-100
}

// Registry 主数据注册表；装载后只读
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*model.Resource
	routings  map[string]model.RoutingTemplate
	rules     []scheduler.Rule
	materials []model.MaterialSignal
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]*model.Resource),
		routings:  make(map[string]model.RoutingTemplate),
	}
}

// Load 从配置指定的 YAML 文件装载主数据
func Load(cfg *config.MasterDataConfig) (*Registry, error) {
	reg := NewRegistry()

	if err := reg.loadResources(cfg.ResourcesFile); err != nil {
		return nil, err
	}
	if err := reg.loadRoutings(cfg.RoutingsFile); err != nil {
		return nil, err
	}
	if cfg.RulesFile != "" {
		if err := reg.loadRules(cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	if cfg.MaterialsFile != "" {
		if err := reg.loadMaterials(cfg.MaterialsFile); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Int("resources", len(reg.resources)).
		Int("routings", len(reg.routings)).
		Int("rules", len(reg.rules)).
		Msg("主数据装载完成")

	return reg, nil
}

// loadResources 装载资源清单
func (r *Registry) loadResources(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取资源清单失败: %w", err)
	}

	var doc struct {
		Resources []*model.Resource `yaml:"resources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("解析资源清单失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range doc.Resources {
		if err := res.Validate(); err != nil {
			return fmt.Errorf("资源 %s 校验失败: %w", res.ID, err)
		}
		if _, ok := r.resources[res.ID]; ok {
			return errors.Newf(errors.CodeInvalidInput, "资源编码重复: %s", res.ID)
		}
		r.resources[res.ID] = res
	}

	return nil
}

// loadRoutings 装载工艺路线模板
func (r *Registry) loadRoutings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取工艺路线失败: %w", err)
	}

	var doc struct {
		Routings []model.RoutingTemplate `yaml:"routings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("解析工艺路线失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range doc.Routings {
		if rt.Product == "" || len(rt.Steps) == 0 {
			return errors.Newf(errors.CodeInvalidInput, "工艺路线不完整: %s", rt.Product)
		}
		r.routings[rt.Product] = rt
	}

	return nil
}

// loadRules 装载软规则库
func (r *Registry) loadRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取规则库失败: %w", err)
	}

	var doc struct {
		Rules []SoftRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("解析规则库失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, raw := range doc.Rules {
		rule, err := buildRule(raw)
		if err != nil {
			return err
		}
		r.rules = append(r.rules, rule)
	}

	return nil
}

// loadMaterials 装载物料可用量信号
func (r *Registry) loadMaterials(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取物料信号失败: %w", err)
	}

	var doc struct {
		Materials []model.MaterialSignal `yaml:"materials"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("解析物料信号失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials = doc.Materials

	return nil
}

// buildRule 将规则配置转换为调度规则
func buildRule(raw SoftRule) (scheduler.Rule, error) {
	switch raw.Type {
	case "prefer-resource":
		return &scheduler.PreferResourceRule{
			RuleName:   raw.Name,
			Capability: raw.Capability,
			ResourceID: raw.ResourceID,
			Weight:     raw.Confidence,
		}, nil
	case "avoid-resource":
		return &scheduler.AvoidResourceRule{
			RuleName:   raw.Name,
			ResourceID: raw.ResourceID,
			Priority:   raw.Priority,
			Weight:     raw.Confidence,
		}, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "未知规则类型: %s", raw.Type)
	}
}

// Resources 返回全部资源，按编码排序
func (r *Registry) Resources() []*model.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resource 按编码获取资源
func (r *Registry) Resource(id string) (*model.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	return res, ok
}

// Routings 返回产品到工艺路线的映射
func (r *Registry) Routings() map[string]model.RoutingTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.RoutingTemplate, len(r.routings))
	for k, v := range r.routings {
		out[k] = v
	}
	return out
}

// Routing 按产品获取工艺路线
func (r *Registry) Routing(product string) (model.RoutingTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routings[product]
	return rt, ok
}

// Rules 返回软规则列表
func (r *Registry) Rules() []scheduler.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]scheduler.Rule(nil), r.rules...)
}

// Materials 返回物料可用量信号
func (r *Registry) Materials() []model.MaterialSignal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.MaterialSignal(nil), r.materials...)
}

// SetMaterials 更新物料信号（外部系统推送）
func (r *Registry) SetMaterials(signals []model.MaterialSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials = append([]model.MaterialSignal(nil), signals...)
}
