package plan

import (
	"strconv"

	"github.com/prillcode/devstack/internal/core/stack"
)

// =============================================================================
// Profile Resolution
// =============================================================================

// ResolveProfile selects the services to activate for an invocation.
//
// Always-on services (empty profile set) are always included. Services
// tagged with profiles are included only when the requested profile is one
// of their tags. Declaration order is preserved.
//
// An empty profile selects exactly the always-on subset. A non-empty
// profile that no service declares fails with ErrUnknownProfile; nothing
// has started at that point, so the caller can abort cleanly.
func ResolveProfile(def *stack.StackDefinition, profile string) ([]stack.ServiceSpec, error) {
	if profile != "" && !def.Profiles()[profile] {
		return nil, NewPlanError(profile,
			"profile "+strconv.Quote(profile)+" is not declared by any service", ErrUnknownProfile)
	}

	selected := make([]stack.ServiceSpec, 0, len(def.Services))
	for _, svc := range def.Services {
		if svc.AlwaysOn() || (profile != "" && svc.HasProfile(profile)) {
			selected = append(selected, svc)
		}
	}
	return selected, nil
}
