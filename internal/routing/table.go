package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fallback workflows used when no pattern rule matches the alert name.
const (
	CriticalWorkflow = "remediation.critical_alert_workflow"
	WarningWorkflow  = "remediation.warning_alert_workflow"
	DefaultWorkflow  = "remediation.default_workflow"
)

// Rule maps a substring of the alert name to a remote workflow.
type Rule struct {
	Pattern  string `yaml:"pattern"`
	Workflow string `yaml:"workflow"`
}

// Table resolves alert attributes to a remote workflow identifier. Rules are
// evaluated in slice order so results stay deterministic; never back this
// with a map.
type Table struct {
	rules []Rule
}

// NewTable builds a table from an ordered rule list.
func NewTable(rules []Rule) *Table {
	return &Table{rules: rules}
}

// DefaultTable returns the built-in rule set.
func DefaultTable() *Table {
	return NewTable([]Rule{
		{Pattern: "HostDown", Workflow: "remediation.host_down_workflow"},
		{Pattern: "NodeDown", Workflow: "remediation.host_down_workflow"},
		{Pattern: "HighMemory", Workflow: "remediation.memory_check_workflow"},
		{Pattern: "HighCPU", Workflow: "remediation.cpu_check_workflow"},
		{Pattern: "DiskFull", Workflow: "remediation.disk_cleanup_workflow"},
		{Pattern: "ServiceDown", Workflow: "remediation.service_restart_workflow"},
	})
}

// LoadTable reads an ordered rule list from a YAML file:
//
//	- pattern: HostDown
//	  workflow: remediation.host_down_workflow
//
// An empty path returns the built-in table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing rules: %w", err)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse routing rules: %w", err)
	}
	for i, r := range rules {
		if r.Pattern == "" || r.Workflow == "" {
			return nil, fmt.Errorf("routing rule %d: pattern and workflow are required", i)
		}
	}

	return NewTable(rules), nil
}

// Rules returns a copy of the rule list, in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Resolve maps an alert's name and severity to a workflow identifier.
// The first rule whose pattern is a substring of the name wins; otherwise
// severity picks a fallback. Pure function, no I/O.
func (t *Table) Resolve(alertName, severity string) string {
	for _, rule := range t.rules {
		if strings.Contains(alertName, rule.Pattern) {
			return rule.Workflow
		}
	}

	switch severity {
	case "critical":
		return CriticalWorkflow
	case "warning":
		return WarningWorkflow
	default:
		return DefaultWorkflow
	}
}
