package engine

import (
	"errors"
	"reflect"
	"testing"
)

func specs(entries map[string][]string) []ComponentSpec {
	out := make([]ComponentSpec, 0, len(entries))
	for name, deps := range entries {
		out = append(out, ComponentSpec{Name: name, Namespace: "default", Dependencies: deps})
	}
	return out
}

func TestPlan_OrdersDependenciesFirst(t *testing.T) {
	components := []ComponentSpec{
		{Name: "c", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
		{Name: "a"},
	}

	order, err := Plan(components)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}

	got := make([]string, len(order))
	for i, c := range order {
		got[i] = c.Name
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestPlan_TieBreakByAscendingName(t *testing.T) {
	// B and C both become eligible once A is placed; B must come first.
	components := []ComponentSpec{
		{Name: "c", Dependencies: []string{"a"}},
		{Name: "b", Dependencies: []string{"a"}},
		{Name: "a"},
	}

	order, err := Plan(components)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}

	got := []string{order[0].Name, order[1].Name, order[2].Name}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	components := specs(map[string][]string{
		"ingress":  {"cert-manager", "metallb"},
		"metallb":  nil,
		"storage":  nil,
		"database": {"storage"},
		"keystone": {"database", "ingress"},

		"cert-manager": nil,
	})

	first, err := Plan(components)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Plan(components)
		if err != nil {
			t.Fatalf("Plan returned error on run %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Plan is not deterministic: %v vs %v", first, again)
		}
	}
}

func TestPlan_NeverPlacesComponentBeforeDependency(t *testing.T) {
	components := specs(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
		"d": {"c"},
		"e": nil,
		"f": {"e", "a"},
	})

	order, err := Plan(components)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}

	position := make(map[string]int, len(order))
	for i, c := range order {
		position[c.Name] = i
	}
	for _, c := range components {
		for _, d := range c.Dependencies {
			if position[d] > position[c.Name] {
				t.Errorf("%s placed at %d before its dependency %s at %d",
					c.Name, position[c.Name], d, position[d])
			}
		}
	}
}

func TestPlan_UnknownDependency(t *testing.T) {
	components := []ComponentSpec{
		{Name: "a"},
		{Name: "b", Dependencies: []string{"ghost"}},
	}

	_, err := Plan(components)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var unknown *UnknownDependencyError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownDependencyError, got %T: %v", err, err)
	}
	if unknown.Component != "b" || unknown.Missing != "ghost" {
		t.Errorf("error = {%s, %s}, want {b, ghost}", unknown.Component, unknown.Missing)
	}
	if !IsPlanningError(err) {
		t.Error("IsPlanningError = false, want true")
	}
}

func TestPlan_CycleDetection(t *testing.T) {
	components := []ComponentSpec{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
	}

	order, err := Plan(components)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if order != nil {
		t.Errorf("expected no partial order, got %v", order)
	}

	var cyclic *CyclicDependencyError
	if !errors.As(err, &cyclic) {
		t.Fatalf("expected CyclicDependencyError, got %T: %v", err, err)
	}
	if !reflect.DeepEqual(cyclic.Remaining, []string{"a", "b"}) {
		t.Errorf("Remaining = %v, want [a b]", cyclic.Remaining)
	}
}

func TestPlan_DuplicateName(t *testing.T) {
	components := []ComponentSpec{
		{Name: "a"},
		{Name: "a"},
	}

	if _, err := Plan(components); err == nil {
		t.Fatal("expected error for duplicate names, got nil")
	}
}

func TestPlan_DuplicateDependencyEntries(t *testing.T) {
	// A repeated dependency entry must not inflate the indegree.
	components := []ComponentSpec{
		{Name: "a"},
		{Name: "b", Dependencies: []string{"a", "a"}},
	}

	order, err := Plan(components)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(order) != 2 || order[0].Name != "a" || order[1].Name != "b" {
		t.Errorf("unexpected order: %v", order)
	}
}

func TestPlanNames(t *testing.T) {
	names, err := PlanNames([]ComponentSpec{
		{Name: "b", Dependencies: []string{"a"}},
		{Name: "a"},
	})
	if err != nil {
		t.Fatalf("PlanNames returned error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("names = %v, want [a b]", names)
	}
}
