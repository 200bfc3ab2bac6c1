// Package promise 提供交付承诺引擎（ATP/CTP）
//
// ATP 只看现行计划的产能裕量，不插入新需求；
// CTP 在计划克隆上插入合成工单试排，必要时追加加班产能。
// 两者都绝不改动已提交的计划；承诺落地是独立的显式动作。
package promise

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowiq/flowiq/pkg/calendar"
	"github.com/flowiq/flowiq/pkg/errors"
	"github.com/flowiq/flowiq/pkg/logger"
	"github.com/flowiq/flowiq/pkg/model"
	"github.com/flowiq/flowiq/pkg/scheduler"
)

// Config 承诺引擎配置
type Config struct {
	VarianceHours float64 // 历史波动（小时），置信度分母
	OvertimePerDay float64 // CTP 第二轮每日可追加的加班小时数
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		VarianceHours:  24,
		OvertimePerDay: 4,
	}
}

// Request 承诺查询请求
type Request struct {
	Customer      string    `json:"customer"`
	Product       string    `json:"product"`
	Quantity      int       `json:"quantity"`
	RequestedDate time.Time `json:"requested_date"`
}

// Validate 校验请求
func (r Request) Validate() error {
	if r.Product == "" {
		return errors.New(errors.CodeInvalidInput, "产品不能为空")
	}
	if r.Quantity <= 0 {
		return errors.New(errors.CodeInvalidInput, "数量必须大于0")
	}
	if r.RequestedDate.IsZero() {
		return errors.New(errors.CodeInvalidInput, "请求交期不能为空")
	}
	return nil
}

// Engine 承诺引擎
type Engine struct {
	cfg       *Config
	sched     *scheduler.Scheduler
	templates map[string]*model.RoutingTemplate
	log       *logger.SchedulerLogger
}

// NewEngine 创建承诺引擎
func NewEngine(cfg *Config, templates []*model.RoutingTemplate) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{
		cfg:       cfg,
		sched:     scheduler.New(),
		templates: make(map[string]*model.RoutingTemplate, len(templates)),
		log:       logger.NewSchedulerLogger(),
	}
	for _, t := range templates {
		e.templates[t.Product] = t
	}
	return e
}

// Template 返回产品的路线模板
func (e *Engine) Template(product string) *model.RoutingTemplate {
	return e.templates[product]
}

// CheckATP 可承诺量检查：在现行产能账本的克隆上顺排路线探测最早交付
// 不可行是正常结果而非错误；只有畸形输入返回 error。
func (e *Engine) CheckATP(req Request, cal *calendar.Service, opts scheduler.Options) (*model.ATPResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tpl := e.templates[req.Product]
	if tpl == nil {
		return nil, errors.Newf(errors.CodeNotFound, "产品 %s 没有工艺路线模板", req.Product)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	horizon := opts.Now.Add(scheduler.DefaultHorizon)

	// 在克隆账本上顺排探测，绝不触碰现行账本
	probe := cal.Clone()
	completion, ok := e.probeRouting(probe, tpl, req.Quantity, opts.Now, horizon)
	if !ok {
		return &model.ATPResult{Available: false, Confidence: 0}, nil
	}

	slackHours := req.RequestedDate.Sub(completion).Hours()
	return &model.ATPResult{
		Available:  !completion.After(req.RequestedDate),
		Date:       completion,
		Confidence: e.confidence(slackHours),
	}, nil
}

// probeRouting 在账本上顺排整条路线，返回完工时间
func (e *Engine) probeRouting(cal *calendar.Service, tpl *model.RoutingTemplate, quantity int, from, horizon time.Time) (time.Time, bool) {
	cursor := from
	for _, step := range tpl.Steps {
		dur := step.HoursFor(quantity)
		resources := cal.ByCapability(step.Capability)
		if len(resources) == 0 {
			return time.Time{}, false
		}
		var bestStart time.Time
		bestRes := ""
		for _, r := range resources {
			start, ok := cal.NextFit(r.ID, cursor, dur, horizon)
			if !ok {
				continue
			}
			if bestRes == "" || start.Before(bestStart) || (start.Equal(bestStart) && r.ID < bestRes) {
				bestRes, bestStart = r.ID, start
			}
		}
		if bestRes == "" {
			return time.Time{}, false
		}
		end := bestStart.Add(time.Duration(dur * float64(time.Hour)))
		if err := cal.Reserve(bestRes, bestStart, end); err != nil {
			return time.Time{}, false
		}
		cursor = end
	}
	return cursor, true
}

// confidence 置信度：剩余裕量 ÷ 历史波动，单调且截断在 [0,100]
func (e *Engine) confidence(slackHours float64) int {
	c := 50 + slackHours/e.cfg.VarianceHours*25
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return int(c)
}

// CTPOutcome CTP 检查结果及其候选计划
type CTPOutcome struct {
	Result    *model.CTPResult
	Candidate *model.Schedule  // 试排得到的计划，显式承诺时采纳
	Order     *model.WorkOrder // 合成工单，承诺提交时随计划一起采纳
	OrderID   string           // 合成工单ID
}

// CheckCTP 可生产承诺检查：克隆状态插入合成工单重排
// 第一轮不加班；不可行时第二轮在路线相关资源上追加加班产能。
// 任何一轮都不改动 committed；返回的候选计划仅在显式承诺时采纳。
func (e *Engine) CheckCTP(ctx context.Context, req Request, orders []*model.WorkOrder, committed *model.Schedule, resources []*model.Resource, opts scheduler.Options) (*CTPOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tpl := e.templates[req.Product]
	if tpl == nil {
		return nil, errors.Newf(errors.CodeNotFound, "产品 %s 没有工艺路线模板", req.Product)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	synthetic := e.synthesize(tpl, req)
	trial := append(cloneOrders(orders), synthetic)

	// 第一轮：标称产能
	cal := calendar.NewService(resources)
	result, err := e.sched.Reschedule(ctx, trial, committed, cal, opts)
	if err != nil {
		return nil, err
	}
	completion := result.Schedule.WorkOrderEnd(synthetic.ID)
	if !completion.IsZero() && !completion.After(req.RequestedDate) {
		return &CTPOutcome{
			Result: &model.CTPResult{
				Feasible:           true,
				Date:               completion,
				RequiresOvertime:   false,
				AffectedWorkOrders: affectedOrders(committed, result.Schedule, synthetic.ID),
			},
			Candidate: result.Schedule,
			Order:     synthetic,
			OrderID:   synthetic.ID,
		}, nil
	}

	// 第二轮：在路线相关资源上逐日追加加班
	cal = calendar.NewService(resources)
	e.addRoutingOvertime(cal, tpl, opts.Now, req.RequestedDate)
	synthetic2 := e.synthesize(tpl, req)
	synthetic2.ID = synthetic.ID
	trial2 := append(cloneOrders(orders), synthetic2)
	result2, err := e.sched.Reschedule(ctx, trial2, committed, cal, opts)
	if err != nil {
		return nil, err
	}
	completion2 := result2.Schedule.WorkOrderEnd(synthetic.ID)
	feasible := !completion2.IsZero() && !completion2.After(req.RequestedDate)
	outcome := &CTPOutcome{
		Result: &model.CTPResult{
			Feasible:           feasible,
			Date:               completion2,
			RequiresOvertime:   feasible,
			AffectedWorkOrders: affectedOrders(committed, result2.Schedule, synthetic.ID),
		},
		Candidate: result2.Schedule,
		Order:     synthetic2,
		OrderID:   synthetic.ID,
	}
	return outcome, nil
}

// synthesize 按路线模板为请求数量合成试排工单
func (e *Engine) synthesize(tpl *model.RoutingTemplate, req Request) *model.WorkOrder {
	order := &model.WorkOrder{
		ID:           fmt.Sprintf("CTP-%s", uuid.New().String()[:8]),
		Customer:     req.Customer,
		Product:      req.Product,
		Quantity:     req.Quantity,
		Priority:     model.PriorityMedium,
		DueDate:      req.RequestedDate,
		PromisedDate: req.RequestedDate,
	}
	for i, step := range tpl.Steps {
		order.Operations = append(order.Operations, &model.Operation{
			ID:         fmt.Sprintf("OP%d", (i+1)*10),
			Name:       step.Name,
			Capability: step.Capability,
			Duration:   step.HoursFor(req.Quantity),
			Sequence:   i + 1,
			Status:     model.OperationPending,
		})
	}
	return order
}

// addRoutingOvertime 在路线涉及的全部资源上按日追加加班窗口
func (e *Engine) addRoutingOvertime(cal *calendar.Service, tpl *model.RoutingTemplate, from, until time.Time) {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for !day.After(until) {
		for _, step := range tpl.Steps {
			for _, r := range cal.ByCapability(step.Capability) {
				cal.AddOvertime(r.ID, day, e.cfg.OvertimePerDay)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}

// affectedOrders 返回起止时间被挤动的既有工单
func affectedOrders(committed, trial *model.Schedule, syntheticID string) []string {
	if committed == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for key, p := range committed.Placements {
		np, ok := trial.Placements[key]
		if !ok {
			continue
		}
		if np.WorkOrderID == syntheticID {
			continue
		}
		if !np.Start.Equal(p.Start) || !np.End.Equal(p.End) || np.ResourceID != p.ResourceID {
			if !seen[p.WorkOrderID] {
				seen[p.WorkOrderID] = true
				out = append(out, p.WorkOrderID)
			}
		}
	}
	sort.Strings(out)
	return out
}

// cloneOrders 深拷贝工单集（试排绝不共享可变状态）
func cloneOrders(orders []*model.WorkOrder) []*model.WorkOrder {
	out := make([]*model.WorkOrder, 0, len(orders))
	for _, o := range orders {
		c := *o
		c.Operations = make([]*model.Operation, len(o.Operations))
		for i, op := range o.Operations {
			oc := *op
			c.Operations[i] = &oc
		}
		out = append(out, &c)
	}
	return out
}
