package rotation

import "github.com/flo-mic/niri-single-output/internal/catalog"

// Action is one power change for one output.
type Action struct {
	Output string
	Enable bool
}

// Plan is the set of power changes that leaves only Target enabled.
// An empty Target means the catalog is empty and nothing is tracked.
type Plan struct {
	Target  string
	Actions []Action
}

// planFor enables target and disables every other output that is on.
// The target is always re-enabled so a drifted compositor converges;
// it comes first so niri never sees zero enabled outputs.
func planFor(cat catalog.Catalog, target string) Plan {
	p := Plan{Target: target}
	if target == "" {
		return p
	}
	p.Actions = append(p.Actions, Action{Output: target, Enable: true})
	for _, o := range cat {
		if o.Name != target && o.Enabled {
			p.Actions = append(p.Actions, Action{Output: o.Name, Enable: false})
		}
	}
	return p
}

// stepIndex moves step positions from current around a ring of n
// outputs. A current of -1 means "before the first" for forward steps
// and "after the last" for backward steps.
func stepIndex(current, step, n int) int {
	if n == 0 {
		return -1
	}
	if current < 0 {
		if step > 0 {
			current = -1
		} else {
			current = n
		}
	}
	return ((current+step)%n + n) % n
}

// PlanInit targets the first output in catalog order.
func PlanInit(cat catalog.Catalog) Plan {
	if len(cat) == 0 {
		return Plan{}
	}
	return planFor(cat, cat[0].Name)
}

// PlanStep targets the output step positions away from current.
// A current that is empty or no longer connected counts as no
// position, so a forward step lands on the first output.
func PlanStep(cat catalog.Catalog, current string, step int) Plan {
	i := stepIndex(cat.Index(current), step, len(cat))
	if i < 0 {
		return Plan{}
	}
	return planFor(cat, cat[i].Name)
}

// PlanActivate targets name, which must be in the catalog.
func PlanActivate(cat catalog.Catalog, name string) (Plan, bool) {
	if cat.Index(name) < 0 {
		return Plan{}, false
	}
	return planFor(cat, name), true
}
