package config

import (
	"context"
	"strings"
	"testing"
)

func TestStarlarkValues_BasicDict(t *testing.T) {
	sv := NewStarlarkValues(0)
	values, err := sv.Eval(context.Background(), "t.star", `
values = {
    "replicas": 3,
    "nested": {"enabled": True, "ratio": 0.5},
    "hosts": ["a", "b"],
}
`, "dev")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}

	if values["replicas"] != 3 {
		t.Errorf("replicas = %v (%T), want int 3", values["replicas"], values["replicas"])
	}
	nested := values["nested"].(map[string]interface{})
	if nested["enabled"] != true || nested["ratio"] != 0.5 {
		t.Errorf("nested = %v", nested)
	}
	hosts := values["hosts"].([]interface{})
	if len(hosts) != 2 || hosts[0] != "a" {
		t.Errorf("hosts = %v", hosts)
	}
}

func TestStarlarkValues_EnvPredeclared(t *testing.T) {
	sv := NewStarlarkValues(0)
	values, err := sv.Eval(context.Background(), "t.star", `
values = {"debug": env != "prod"}
`, "prod")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if values["debug"] != false {
		t.Errorf("debug = %v, want false for prod", values["debug"])
	}
}

func TestStarlarkValues_MissingValuesGlobal(t *testing.T) {
	sv := NewStarlarkValues(0)
	_, err := sv.Eval(context.Background(), "t.star", `x = 1`, "dev")
	if err == nil {
		t.Fatalf("expected error for missing values global")
	}
	if !strings.Contains(err.Error(), "values") {
		t.Errorf("error = %v, want mention of values global", err)
	}
}

func TestStarlarkValues_NonDictValues(t *testing.T) {
	sv := NewStarlarkValues(0)
	if _, err := sv.Eval(context.Background(), "t.star", `values = [1, 2]`, "dev"); err == nil {
		t.Fatalf("expected error for non-dict values")
	}
}

func TestStarlarkValues_SyntaxError(t *testing.T) {
	sv := NewStarlarkValues(0)
	if _, err := sv.Eval(context.Background(), "t.star", `values = {`, "dev"); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestStarlarkValues_NonStringDictKey(t *testing.T) {
	sv := NewStarlarkValues(0)
	if _, err := sv.Eval(context.Background(), "t.star", `values = {1: "x"}`, "dev"); err == nil {
		t.Fatalf("expected error for non-string dict key")
	}
}
