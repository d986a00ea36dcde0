package engine

import (
	"fmt"
	"sort"
)

// Plan computes the deployment order for a set of components using Kahn's
// algorithm. The result is total and deterministic: whenever several
// components are eligible at the same time, they are ordered by ascending
// name, so repeated calls on the same input yield identical orderings.
//
// Plan is pure: it performs no I/O, keeps no state between calls, and on
// error has caused no side effects.
func Plan(components []ComponentSpec) ([]ComponentSpec, error) {
	byName := make(map[string]ComponentSpec, len(components))
	for _, c := range components {
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate component name %q", c.Name)
		}
		byName[c.Name] = c
	}

	// Every dependency must resolve inside the set before any ordering
	// work happens.
	for _, c := range components {
		for _, d := range c.Dependencies {
			if _, ok := byName[d]; !ok {
				return nil, &UnknownDependencyError{Component: c.Name, Missing: d}
			}
		}
	}

	indegree := make(map[string]int, len(components))
	dependents := make(map[string][]string, len(components))
	for _, c := range components {
		// Dedupe declared dependencies so a repeated entry cannot skew
		// the indegree count.
		seen := make(map[string]bool, len(c.Dependencies))
		for _, d := range c.Dependencies {
			if seen[d] {
				continue
			}
			seen[d] = true
			indegree[c.Name]++
			dependents[d] = append(dependents[d], c.Name)
		}
	}

	var frontier []string
	for _, c := range components {
		if indegree[c.Name] == 0 {
			frontier = append(frontier, c.Name)
		}
	}

	order := make([]ComponentSpec, 0, len(components))
	for len(frontier) > 0 {
		sort.Strings(frontier)
		name := frontier[0]
		frontier = frontier[1:]
		order = append(order, byName[name])

		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
	}

	if len(order) != len(components) {
		ordered := make(map[string]bool, len(order))
		for _, c := range order {
			ordered[c.Name] = true
		}
		var remaining []string
		for _, c := range components {
			if !ordered[c.Name] {
				remaining = append(remaining, c.Name)
			}
		}
		sort.Strings(remaining)
		return nil, &CyclicDependencyError{Remaining: remaining}
	}

	return order, nil
}

// PlanNames is a convenience over Plan returning just the ordered names,
// used for plan events and preview output.
func PlanNames(components []ComponentSpec) ([]string, error) {
	order, err := Plan(components)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(order))
	for i, c := range order {
		names[i] = c.Name
	}
	return names, nil
}
