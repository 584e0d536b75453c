package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	f := New()
	if len(f) != 0 {
		t.Errorf("New() should be empty, got %d fields", len(f))
	}
}

func TestFields_Component(t *testing.T) {
	f := New().Component("topology")
	if f["component"] != "topology" {
		t.Errorf("Component() = %v, want %v", f["component"], "topology")
	}
}

func TestFields_Resource(t *testing.T) {
	f := New().Resource("pod", "app-1")
	if f["resource_type"] != "pod" || f["resource_name"] != "app-1" {
		t.Errorf("Resource() = %v", f)
	}
}

func TestFields_ResourceWithoutName(t *testing.T) {
	f := New().Resource("pod", "")
	if _, exists := f["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestFields_Duration(t *testing.T) {
	f := New().Duration(150 * time.Millisecond)
	if f["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want 150", f["duration_ms"])
	}
}

func TestFields_Error(t *testing.T) {
	f := New().Error(errors.New("boom"))
	if f["error"] != "boom" {
		t.Errorf("Error() = %v, want boom", f["error"])
	}
}

func TestFields_ErrorNil(t *testing.T) {
	f := New().Error(nil)
	if _, exists := f["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestFields_ChainedCalls(t *testing.T) {
	f := New().Component("orchestration").Target("default/app-1").Trigger("LATENCY_SPIKE").Count(3)
	expected := map[string]interface{}{
		"component": "orchestration",
		"target":    "default/app-1",
		"trigger":   "LATENCY_SPIKE",
		"count":     3,
	}
	for k, want := range expected {
		if f[k] != want {
			t.Errorf("chained: %s = %v, want %v", k, f[k], want)
		}
	}
}

func TestFields_ToZapFields(t *testing.T) {
	f := New().Component("bus").Topic("anomaly:detected")
	zf := f.ToZapFields()
	if len(zf) != 2 {
		t.Errorf("ToZapFields() len = %d, want 2", len(zf))
	}
}
