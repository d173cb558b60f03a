package ops

import (
	"lab47.dev/strata/pkg/data"
)

// PlanBuild validates a request and selects the typed strategy the
// executor runs. Dynamic conditional command assembly is deliberately
// avoided; the plan kind is the single discriminant.
type PlanBuild struct {
	common
}

func (p *PlanBuild) Plan(req *data.BuildRequest) (*data.BuildPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, track(err)
	}

	plan := &data.BuildPlan{Request: req}

	switch {
	case req.BuildScript == "":
		plan.Kind = data.PlanCopy
	case req.CacheRequested():
		plan.Kind = data.PlanScriptCached
	default:
		plan.Kind = data.PlanScript
	}

	p.L().Debug("planned build", "name", req.Name, "kind", plan.Kind.String())

	return plan, nil
}
