package masterdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowiq/flowiq/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const resourcesYAML = `resources:
  - id: CNC-01
    name: 数控加工中心1号
    type: machine
    department: 机加车间
    capability: machining
    capacity_hours: 16
    status: running
  - id: INSP-01
    name: 检验台
    type: station
    department: 质检
    capability: inspection
    capacity_hours: 8
    status: running
`

const routingsYAML = `routings:
  - product: 法兰盘总成
    steps:
      - name: 粗精加工
        capability: machining
        fixed_hours: 2
        hours_per_unit: 0.2
      - name: 终检
        capability: inspection
        fixed_hours: 1
        hours_per_unit: 0.1
`

const rulesYAML = `rules:
  - type: prefer-resource
    name: 机加优先1号机
    capability: machining
    resource_id: CNC-01
    confidence: 80
  - type: avoid-resource
    name: 低优先级回避检验台
    resource_id: INSP-01
    priority: low
    confidence: 60
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.MasterDataConfig{
		ResourcesFile: writeFile(t, dir, "resources.yaml", resourcesYAML),
		RoutingsFile:  writeFile(t, dir, "routings.yaml", routingsYAML),
		RulesFile:     writeFile(t, dir, "rules.yaml", rulesYAML),
	}

	reg, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	resources := reg.Resources()
	if len(resources) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(resources))
	}
	// 按编码升序
	if resources[0].ID != "CNC-01" || resources[1].ID != "INSP-01" {
		t.Errorf("Resources out of order: %s, %s", resources[0].ID, resources[1].ID)
	}
	cnc, ok := reg.Resource("CNC-01")
	if !ok || cnc.CapacityHours != 16 || cnc.Capability != "machining" {
		t.Errorf("CNC-01 = %+v, expected 16h machining", cnc)
	}

	rt, ok := reg.Routing("法兰盘总成")
	if !ok {
		t.Fatal("Routing 法兰盘总成 missing")
	}
	if len(rt.Steps) != 2 {
		t.Fatalf("Expected 2 routing steps, got %d", len(rt.Steps))
	}
	// 数量10：2 + 0.2×10 = 4 小时
	if got := rt.Steps[0].HoursFor(10); got != 4 {
		t.Errorf("HoursFor(10) = %v, expected 4", got)
	}

	rules := reg.Rules()
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}
	if rules[0].Name() != "机加优先1号机" || rules[0].Confidence() != 80 {
		t.Errorf("Rule[0] = %s/%d, expected 机加优先1号机/80", rules[0].Name(), rules[0].Confidence())
	}
}

func TestLoad_OptionalFilesOmitted(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.MasterDataConfig{
		ResourcesFile: writeFile(t, dir, "resources.yaml", resourcesYAML),
		RoutingsFile:  writeFile(t, dir, "routings.yaml", routingsYAML),
	}

	reg, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load without rules/materials failed: %v", err)
	}
	if len(reg.Rules()) != 0 || len(reg.Materials()) != 0 {
		t.Error("Omitted optional files should yield empty rules/materials")
	}
}

func TestLoad_DuplicateResource(t *testing.T) {
	dir := t.TempDir()
	dup := `resources:
  - id: CNC-01
    name: 一号机
    capability: machining
    capacity_hours: 16
  - id: CNC-01
    name: 重复编码
    capability: machining
    capacity_hours: 16
`
	cfg := &config.MasterDataConfig{
		ResourcesFile: writeFile(t, dir, "resources.yaml", dup),
		RoutingsFile:  writeFile(t, dir, "routings.yaml", routingsYAML),
	}
	if _, err := Load(cfg); err == nil {
		t.Fatal("Duplicate resource ID should be rejected")
	}
}

func TestLoad_InvalidRuleType(t *testing.T) {
	dir := t.TempDir()
	bad := `rules:
  - type: magic
    name: 未知类型
    resource_id: CNC-01
    confidence: 50
`
	cfg := &config.MasterDataConfig{
		ResourcesFile: writeFile(t, dir, "resources.yaml", resourcesYAML),
		RoutingsFile:  writeFile(t, dir, "routings.yaml", routingsYAML),
		RulesFile:     writeFile(t, dir, "rules.yaml", bad),
	}
	if _, err := Load(cfg); err == nil {
		t.Fatal("Unknown rule type should be rejected")
	}
}

func TestLoad_MissingResourceFile(t *testing.T) {
	cfg := &config.MasterDataConfig{
		ResourcesFile: "/nonexistent/resources.yaml",
		RoutingsFile:  "/nonexistent/routings.yaml",
	}
	if _, err := Load(cfg); err == nil {
		t.Fatal("Missing resources file should fail")
	}
}

func TestRegistry_SetMaterials(t *testing.T) {
	reg := NewRegistry()
	if len(reg.Materials()) != 0 {
		t.Fatal("Fresh registry should have no materials")
	}
	reg.SetMaterials(nil)
	if len(reg.Materials()) != 0 {
		t.Error("SetMaterials(nil) should keep registry empty")
	}
}
