package plan

import (
	"regexp"

	"github.com/prillcode/devstack/internal/core/stack"
)

// =============================================================================
// Runtime Parameter Resolution
// =============================================================================

// ParameterSource identifies which source supplied a parameter value.
type ParameterSource string

const (
	SourceFlag    ParameterSource = "flag"
	SourceEnv     ParameterSource = "env"
	SourceDefault ParameterSource = "default"
)

// ResolvedParameter is a runtime parameter with exactly one winning source.
type ResolvedParameter struct {
	Name   string
	Value  string
	Source ParameterSource
}

// EnvLookup reads a variable from the process environment. Tests inject a
// fake; the shell passes os.LookupEnv.
type EnvLookup func(name string) (string, bool)

// ResolveParameters resolves every declared parameter by precedence:
// explicit flag override > declared environment variable > declared default.
//
// Resolution is deterministic: the first source with a value wins and the
// winner is recorded so the orchestrator can log it. A flag override for a
// parameter the stack does not declare fails with ErrUndeclaredOverride. A
// declared parameter with no value from any source fails with
// ErrUnresolvedParameter.
func ResolveParameters(def *stack.StackDefinition, overrides map[string]string, lookupEnv EnvLookup) (map[string]ResolvedParameter, error) {
	if lookupEnv == nil {
		lookupEnv = func(string) (string, bool) { return "", false }
	}

	for name := range overrides {
		if def.Parameter(name) == nil {
			return nil, NewPlanError(name, "stack file declares no such parameter", ErrUndeclaredOverride)
		}
	}

	resolved := make(map[string]ResolvedParameter, len(def.Parameters))
	for _, param := range def.Parameters {
		// Comma-ok so an explicit empty override still wins over env and
		// default.
		if val, ok := overrides[param.Name]; ok {
			resolved[param.Name] = ResolvedParameter{
				Name:   param.Name,
				Value:  val,
				Source: SourceFlag,
			}
			continue
		}
		if param.Env != "" {
			if val, ok := lookupEnv(param.Env); ok {
				resolved[param.Name] = ResolvedParameter{
					Name:   param.Name,
					Value:  val,
					Source: SourceEnv,
				}
				continue
			}
		}
		if param.Default != "" {
			resolved[param.Name] = ResolvedParameter{
				Name:   param.Name,
				Value:  param.Default,
				Source: SourceDefault,
			}
			continue
		}
		return nil, NewPlanError(param.Name,
			"no flag, environment, or default value", ErrUnresolvedParameter)
	}
	return resolved, nil
}

// Values flattens resolved parameters into a substitution map.
func Values(params map[string]ResolvedParameter) map[string]string {
	values := make(map[string]string, len(params))
	for name, p := range params {
		values[name] = p.Value
	}
	return values
}

// =============================================================================
// Placeholder Substitution
// =============================================================================

// varPlaceholderRegex matches ${NAME} and ${NAME:-default} patterns.
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Substitute replaces ${NAME} and ${NAME:-default} placeholders with values
// from the given map.
//
// Behavior:
//   - ${NAME} - replaced with values["NAME"] if present, otherwise kept as-is
//   - ${NAME:-default} - replaced with values["NAME"] if present, otherwise "default"
//   - Unmatched text is left unchanged
//
// Examples:
//
//	Substitute("${serve_path}", map[string]string{"serve_path": "/srv/www"})
//	// Returns: "/srv/www"
//
//	Substitute("${port:-8080}", map[string]string{})
//	// Returns: "8080"
func Substitute(value string, values map[string]string) string {
	if values == nil {
		values = make(map[string]string)
	}

	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		idx := varPlaceholderRegex.FindStringSubmatchIndex(match)
		if idx == nil {
			return match
		}
		name := match[idx[2]:idx[3]]
		if val, ok := values[name]; ok {
			return val
		}
		// The default group's start index is -1 only when the :- form is
		// absent, so ${NAME:-} resolves to "" while ${NAME} stays as-is.
		if idx[4] >= 0 {
			return match[idx[4]:idx[5]]
		}
		return match
	})
}
