package core

import (
	"fmt"
	"strings"
)

// Plan is the structured artifact produced by a task's planning turn and
// persisted via the save_plan tool callback.
//
// VisualPlan is kept as an opaque map rather than a typed struct: its shape
// is owned by the planning UI, the orchestration core never reads individual
// fields from it, and a typed struct would just be an untested mirror of
// whatever the UI sends. Round-tripping it as map[string]interface{}
// preserves unknown sections without the core taking a dependency on their
// schema. The one shape the core does enforce is the minimum one the Task
// Store needs: when present, VisualPlan["sections"] must be a non-empty
// sequence of objects each carrying a "component" tag.
type Plan struct {
	Goal       string   `yaml:"goal" json:"goal"`
	Steps      []string `yaml:"steps,omitempty" json:"steps,omitempty"`
	Validation []string `yaml:"validation,omitempty" json:"validation,omitempty"`
	Cleanup    []string `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`

	VisualPlan map[string]interface{} `yaml:"visualPlan,omitempty" json:"visualPlan,omitempty"`
}

// IsEmpty reports whether the plan has no content at all, used to reject a
// save_plan call that would otherwise produce a plan satisfying PlanPresent
// vacuously.
func (p *Plan) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Goal == "" && len(p.Steps) == 0 && len(p.VisualPlan) == 0
}

// Validate checks the minimum shape a plan must hold: it must not be empty,
// and if VisualPlan is present its "sections" entry must be a non-empty
// sequence of objects each carrying a non-empty "component" string.
func (p *Plan) Validate() error {
	if p.IsEmpty() {
		return fmt.Errorf("plan is empty")
	}
	if len(p.VisualPlan) == 0 {
		return nil
	}
	raw, ok := p.VisualPlan["sections"]
	if !ok {
		return nil
	}
	sections, ok := raw.([]interface{})
	if !ok || len(sections) == 0 {
		return fmt.Errorf("visualPlan.sections must be a non-empty sequence of objects")
	}
	for i, s := range sections {
		obj, ok := s.(map[string]interface{})
		if !ok {
			return fmt.Errorf("visualPlan.sections[%d] is not an object", i)
		}
		component, _ := obj["component"].(string)
		if strings.TrimSpace(component) == "" {
			return fmt.Errorf("visualPlan.sections[%d] is missing a non-empty component tag", i)
		}
	}
	return nil
}

// Normalize synthesizes whichever of the legacy {goal, steps, validation,
// cleanup} shape or the visualPlan shape is missing from the other, so a
// plan saved from either save_plan implementation round-trips as both.
func (p *Plan) Normalize() {
	hasLegacy := p.Goal != "" || len(p.Steps) > 0 || len(p.Validation) > 0 || len(p.Cleanup) > 0
	hasVisual := len(p.VisualPlan) > 0

	if hasVisual && !hasLegacy {
		p.Goal, p.Steps, p.Validation, p.Cleanup = legacyFromVisualPlan(p.VisualPlan)
	}
	if hasLegacy && !hasVisual {
		p.VisualPlan = visualPlanFromLegacy(p.Goal, p.Steps, p.Validation, p.Cleanup)
	}
}

func legacyFromVisualPlan(vp map[string]interface{}) (goal string, steps, validation, cleanup []string) {
	if g, ok := vp["goal"].(string); ok {
		goal = g
	}
	sections, _ := vp["sections"].([]interface{})
	for _, raw := range sections {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		component, _ := obj["component"].(string)
		description, _ := obj["description"].(string)
		line := component
		if description != "" {
			line = fmt.Sprintf("%s: %s", component, description)
		}
		kind, _ := obj["kind"].(string)
		switch kind {
		case "validation":
			validation = append(validation, line)
		case "cleanup":
			cleanup = append(cleanup, line)
		default:
			steps = append(steps, line)
		}
	}
	return goal, steps, validation, cleanup
}

func visualPlanFromLegacy(goal string, steps, validation, cleanup []string) map[string]interface{} {
	sections := make([]interface{}, 0, len(steps)+len(validation)+len(cleanup))
	appendSections := func(items []string, kind string) {
		for _, item := range items {
			sections = append(sections, map[string]interface{}{
				"component":   "step",
				"kind":        kind,
				"description": item,
			})
		}
	}
	appendSections(steps, "step")
	appendSections(validation, "validation")
	appendSections(cleanup, "cleanup")
	return map[string]interface{}{
		"goal":     goal,
		"sections": sections,
	}
}
