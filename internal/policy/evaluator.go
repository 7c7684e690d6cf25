package policy

import (
	"fmt"
	"sort"
	"time"
)

// State is the per-policy evaluation state.
type State string

const (
	StateNotApplicable State = "not_applicable"
	StateApplicable    State = "applicable"
	StateMatchedAllow  State = "matched_allow"
	StateMatchedDeny   State = "matched_deny"
)

type Input struct {
	TenantID   int64
	Attributes Attributes
	Now        time.Time
	// Location is the tenant timezone used when neither the policy nor the
	// condition names one.
	Location *time.Location
}

type Step struct {
	PolicyID int64  `json:"policy_id"`
	Priority int    `json:"priority"`
	State    State  `json:"state"`
	Note     string `json:"note,omitempty"`
}

type Outcome struct {
	State    State  `json:"state"`
	PolicyID int64  `json:"policy_id,omitempty"`
	Effect   Effect `json:"effect,omitempty"`
	Trace    []Step `json:"trace,omitempty"`
}

// Matched reports whether some policy decided the request.
func (o Outcome) Matched() bool {
	return o.State == StateMatchedAllow || o.State == StateMatchedDeny
}

// Evaluate runs the candidate policies against in. Non-time conditions are
// checked first, then time conditions, all with AND semantics. Survivors are
// ordered by priority then id and the first one decides. Without a survivor
// the outcome is not_applicable and the caller's permission check stands.
func Evaluate(policies []Policy, in Input) (Outcome, error) {
	ordered := make([]Policy, len(policies))
	copy(ordered, policies)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	out := Outcome{State: StateNotApplicable}
	seen := make(map[int64]bool, len(ordered))

	for _, p := range ordered {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		step := Step{PolicyID: p.ID, Priority: p.Priority, State: StateNotApplicable}

		if out.Matched() {
			step.Note = "shadowed"
			out.Trace = append(out.Trace, step)
			continue
		}

		state, note, err := p.state(in)
		if err != nil {
			return Outcome{}, fmt.Errorf("policy %d: %w", p.ID, err)
		}
		step.State, step.Note = state, note
		out.Trace = append(out.Trace, step)

		if state == StateMatchedAllow || state == StateMatchedDeny {
			out.State = state
			out.PolicyID = p.ID
			out.Effect = p.Effect
		}
	}

	return out, nil
}

func (p Policy) state(in Input) (State, string, error) {
	if !p.IsActive {
		return StateNotApplicable, "inactive", nil
	}
	if in.TenantID != 0 && p.TenantID != in.TenantID {
		return StateNotApplicable, "other tenant", nil
	}
	for i, c := range p.Conditions {
		if !c.Matches(in.Attributes) {
			return StateNotApplicable, fmt.Sprintf("condition %d did not match", i), nil
		}
	}

	loc := in.Location
	if p.Timezone != "" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return "", "", fmt.Errorf("unknown timezone %q", p.Timezone)
		}
		loc = l
	}

	for i, c := range p.TimeConditions {
		ok, err := c.Evaluate(in.Now, loc)
		if err != nil {
			return "", "", err
		}
		if !ok {
			return StateNotApplicable, fmt.Sprintf("time condition %d outside window", i), nil
		}
	}

	switch p.Effect {
	case EffectAllow:
		return StateMatchedAllow, "", nil
	case EffectDeny:
		return StateMatchedDeny, "", nil
	}
	return "", "", fmt.Errorf("unknown effect %q", p.Effect)
}
