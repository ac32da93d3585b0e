package rules

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"minisiem/pkg/models"
)

const scanRule = `title: ET SCAN Nmap probe
id: 5b1f3c1e-0c8a-4b7c-9f51-3d0d4f6b0a01
status: experimental
level: high
tags:
  - attack.discovery
  - attack.t1046
logsource:
  product: suricata
detection:
  selection:
    event_type: alert
    alert.signature|contains: 'SCAN'
  condition: selection
`

const windowsRule = `title: Windows only
logsource:
  product: windows
detection:
  selection:
    EventID: 1
  condition: selection
`

const countRule = `title: Too many alerts
logsource:
  product: suricata
detection:
  selection:
    event_type: alert
  timeframe: 5m
  condition: selection | count() > 10
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("write rule: %v", err)
		}
	}
	return dir
}

func TestNewSigmaEngineSkipsUnsupportedRules(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"scan.yml":    scanRule,
		"windows.yml": windowsRule,
		"count.yaml":  countRule,
		"broken.yml":  "title: [",
		"notes.txt":   "ignored",
	})

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if stats.TotalFiles != 4 {
		t.Fatalf("expected 4 yaml files, got %d", stats.TotalFiles)
	}
	if stats.Loaded != 1 || engine.Len() != 1 {
		t.Fatalf("expected 1 loaded rule, got %+v", stats)
	}
	if stats.SkippedDatasource != 1 {
		t.Fatalf("expected windows rule skipped, got %+v", stats)
	}
	if stats.SkippedInvalid+stats.SkippedComplex != 2 {
		t.Fatalf("expected broken and count rules skipped, got %+v", stats)
	}
}

func TestSigmaEngineTagsMatchingAlert(t *testing.T) {
	dir := writeRules(t, map[string]string{"scan.yml": scanRule})
	engine, _, err := NewSigmaEngine(filepath.Join(dir, "scan.yml"))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	var event models.Event
	raw := `{"event_type":"alert","src_ip":"10.0.0.5","alert":{"signature":"ET SCAN Nmap Scripting Engine","signature_id":2009358}}`
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}

	tags := engine.Apply(event)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}
	tag := tags[0]
	if tag.Severity != "high" || tag.Tactic != "discovery" || tag.Technique != "T1046" {
		t.Fatalf("unexpected tag: %+v", tag)
	}

	other := models.Event{"event_type": "alert", "alert": map[string]interface{}{"signature": "ET POLICY curl"}}
	if tags := engine.Apply(other); len(tags) != 0 {
		t.Fatalf("expected no tags, got %v", tags)
	}
}

func TestNewSigmaEngineRejectsNonYAMLFile(t *testing.T) {
	dir := writeRules(t, map[string]string{"rule.txt": scanRule})
	if _, _, err := NewSigmaEngine(filepath.Join(dir, "rule.txt")); err == nil {
		t.Fatalf("expected error for non-yaml rule file")
	}
}

func TestFlattenEventUsesDottedKeys(t *testing.T) {
	flat := flattenEvent(models.Event{
		"event_type": "alert",
		"flow_id":    json.Number("1234567890123456789"),
		"alert":      map[string]interface{}{"severity": json.Number("2")},
	})
	if flat["alert.severity"] != "2" {
		t.Fatalf("expected alert.severity=2, got %v", flat["alert.severity"])
	}
	if flat["flow_id"] != "1234567890123456789" {
		t.Fatalf("expected flow_id kept exact, got %v", flat["flow_id"])
	}
	if _, ok := flat["alert"]; ok {
		t.Fatalf("expected nested map to be flattened")
	}
}

func TestParseAttackTags(t *testing.T) {
	tactic, technique := parseAttackTags([]string{"attack.initial_access", "attack.t1190", "cve.2021-44228"})
	if tactic != "initial-access" || technique != "T1190" {
		t.Fatalf("unexpected tactic/technique: %q %q", tactic, technique)
	}
}
