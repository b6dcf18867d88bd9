package routing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTable_Resolve_PatternMatching(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name      string
		alertName string
		severity  string
		expected  string
	}{
		{
			name:      "host down",
			alertName: "HostDown",
			severity:  "critical",
			expected:  "remediation.host_down_workflow",
		},
		{
			name:      "node down maps to host down workflow",
			alertName: "NodeDown",
			severity:  "warning",
			expected:  "remediation.host_down_workflow",
		},
		{
			name:      "high memory",
			alertName: "HighMemoryUsage",
			severity:  "warning",
			expected:  "remediation.memory_check_workflow",
		},
		{
			name:      "high cpu",
			alertName: "HighCPULoad",
			severity:  "critical",
			expected:  "remediation.cpu_check_workflow",
		},
		{
			name:      "disk full",
			alertName: "DiskFullRoot",
			severity:  "critical",
			expected:  "remediation.disk_cleanup_workflow",
		},
		{
			name:      "service down",
			alertName: "ServiceDownNginx",
			severity:  "warning",
			expected:  "remediation.service_restart_workflow",
		},
		{
			name:      "substring match mid-name",
			alertName: "ProdHostDownEU",
			severity:  "critical",
			expected:  "remediation.host_down_workflow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Resolve(tt.alertName, tt.severity)
			if got != tt.expected {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.alertName, tt.severity, got, tt.expected)
			}
		})
	}
}

func TestTable_Resolve_SeverityFallbacks(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name      string
		alertName string
		severity  string
		expected  string
	}{
		{"critical fallback", "SomethingUnknown", "critical", CriticalWorkflow},
		{"warning fallback", "SomethingUnknown", "warning", WarningWorkflow},
		{"info falls to default", "SomethingUnknown", "info", DefaultWorkflow},
		{"empty severity falls to default", "SomethingUnknown", "", DefaultWorkflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Resolve(tt.alertName, tt.severity)
			if got != tt.expected {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.alertName, tt.severity, got, tt.expected)
			}
		})
	}
}

func TestTable_Resolve_FirstMatchWins(t *testing.T) {
	table := NewTable([]Rule{
		{Pattern: "Down", Workflow: "first"},
		{Pattern: "HostDown", Workflow: "second"},
	})

	if got := table.Resolve("HostDown", "critical"); got != "first" {
		t.Errorf("expected first matching rule to win, got %q", got)
	}
}

func TestLoadTable_EmptyPathReturnsDefaults(t *testing.T) {
	table, err := LoadTable("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := table.Resolve("HostDown", ""); got != "remediation.host_down_workflow" {
		t.Errorf("expected default rules, got %q", got)
	}
}

func TestLoadTable_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `- pattern: PodCrash
  workflow: remediation.pod_restart_workflow
- pattern: CertExpiry
  workflow: remediation.cert_renew_workflow
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table.Rules()) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(table.Rules()))
	}
	if got := table.Resolve("PodCrashLooping", "warning"); got != "remediation.pod_restart_workflow" {
		t.Errorf("Resolve = %q, want remediation.pod_restart_workflow", got)
	}
	// Loaded rules replace the built-ins entirely.
	if got := table.Resolve("HostDown", "critical"); got != CriticalWorkflow {
		t.Errorf("Resolve = %q, want %q", got, CriticalWorkflow)
	}
}

func TestLoadTable_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "{{{{"},
		{"missing workflow", "- pattern: HostDown\n"},
		{"missing pattern", "- workflow: remediation.host_down_workflow\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write rules file: %v", err)
			}
			if _, err := LoadTable(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := LoadTable(filepath.Join(dir, "does-not-exist.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestTable_Rules_ReturnsCopy(t *testing.T) {
	table := NewTable([]Rule{{Pattern: "HostDown", Workflow: "wf"}})

	rules := table.Rules()
	rules[0].Workflow = "mutated"

	if got := table.Resolve("HostDown", ""); got != "wf" {
		t.Errorf("mutating the returned slice changed the table: %q", got)
	}
}
