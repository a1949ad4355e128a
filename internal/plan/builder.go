// Package plan loads check declarations and assembles them into a phased
// test plan via topological layering of the dependency graph.
package plan

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tupyy/platform-verifier/internal/models"
	verrors "github.com/tupyy/platform-verifier/pkg/errors"
)

// Build layers the declared checks into phases: phase k holds every check
// whose dependencies are all satisfied by phases < k. When
// strictGatewayOrdering is set, gateway checks gain implicit dependencies on
// every service check, so a routing failure can never be mis-attributed to a
// backend outage. Returns CyclicDependencyError if no topological order
// exists.
func Build(checks []models.ServiceCheck, strictGatewayOrdering bool) (models.TestPlan, error) {
	byName := make(map[string]models.ServiceCheck, len(checks))
	for _, c := range checks {
		byName[c.Name] = c
	}

	// deps is a working copy; the declarations stay untouched.
	deps := make(map[string]map[string]struct{}, len(checks))
	for _, c := range checks {
		set := make(map[string]struct{}, len(c.DependsOn))
		for _, d := range c.DependsOn {
			if _, ok := byName[d]; !ok {
				return models.TestPlan{}, fmt.Errorf("check %q depends on unknown check %q", c.Name, d)
			}
			set[d] = struct{}{}
		}
		deps[c.Name] = set
	}

	if strictGatewayOrdering {
		for _, c := range checks {
			if c.Kind != models.CheckKindGateway {
				continue
			}
			for _, other := range checks {
				if other.Kind == models.CheckKindService {
					deps[c.Name][other.Name] = struct{}{}
				}
			}
		}
	}

	placed := make(map[string]struct{}, len(checks))
	var phases [][]models.ServiceCheck

	for len(placed) < len(checks) {
		var ready []string
		for name, set := range deps {
			if _, done := placed[name]; done {
				continue
			}
			satisfied := true
			for d := range set {
				if _, done := placed[d]; !done {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, name)
			}
		}

		if len(ready) == 0 {
			cycle := findCycle(deps, placed)
			return models.TestPlan{}, verrors.NewCyclicDependency(cycle)
		}

		sort.Strings(ready)
		phase := make([]models.ServiceCheck, 0, len(ready))
		for _, name := range ready {
			phase = append(phase, byName[name])
			placed[name] = struct{}{}
		}
		phases = append(phases, phase)
	}

	plan := models.TestPlan{Phases: phases}
	zap.S().Debugw("test plan built",
		"phases", len(plan.Phases),
		"checks", len(checks),
		"probes", plan.ProbeCount(),
	)
	return plan, nil
}

// findCycle walks the unplaced subgraph and returns one dependency cycle.
// Called only when layering is stuck, so a cycle is guaranteed to exist.
func findCycle(deps map[string]map[string]struct{}, placed map[string]struct{}) []string {
	state := make(map[string]int) // 0 unvisited, 1 on stack, 2 done
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = 1
		stack = append(stack, name)
		for d := range deps[name] {
			if _, done := placed[d]; done {
				continue
			}
			switch state[d] {
			case 0:
				if visit(d) {
					return true
				}
			case 1:
				for i, n := range stack {
					if n == d {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, d)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = 2
		return false
	}

	var names []string
	for name := range deps {
		if _, done := placed[name]; !done {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if state[name] == 0 && visit(name) {
			break
		}
	}
	return cycle
}
