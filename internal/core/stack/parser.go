package stack

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseStackSpec parses a compose-style YAML document into a StackDefinition.
// This is a pure function - no I/O, no side effects.
//
// Interpolation is skipped so that ${NAME} placeholders survive parsing;
// they are resolved later by the plan package from flags, environment, and
// declared defaults.
func ParseStackSpec(yamlContent string) (*StackDefinition, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	// Parse YAML into a map first. This also feeds x-parameters extraction
	// and service declaration order, which compose-go does not preserve.
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewValidationError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewValidationError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loadProject(yamlContent, dict)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	def := &StackDefinition{
		Name:     project.Name,
		Services: make([]ServiceSpec, 0, len(project.Services)),
		Volumes:  make([]Volume, 0, len(project.Volumes)),
	}

	// compose-go hands services back as a map; restore declaration order
	// from the raw document.
	order := serviceDeclarationOrder(yamlContent)
	for _, name := range order {
		svc, ok := project.Services[name]
		if !ok {
			continue
		}
		converted, err := convertService(svc)
		if err != nil {
			return nil, err
		}
		def.Services = append(def.Services, converted)
	}
	// Anything the order scan missed (defensively) still gets included.
	for name, svc := range project.Services {
		if def.Service(name) != nil {
			continue
		}
		converted, err := convertService(svc)
		if err != nil {
			return nil, err
		}
		def.Services = append(def.Services, converted)
	}

	for name, vol := range project.Volumes {
		def.Volumes = append(def.Volumes, convertVolume(name, vol))
	}

	params, err := parseParameters(dict)
	if err != nil {
		return nil, err
	}
	def.Parameters = params

	if err := ValidateStack(def); err != nil {
		return nil, err
	}

	return def, nil
}

// loadProject loads a compose project using compose-go.
func loadProject(yamlContent string, dict map[string]interface{}) (*types.Project, error) {
	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("devstack", false)
		opts.SkipValidation = false
		// Placeholders resolve at invocation time, not parse time.
		opts.SkipInterpolation = true
		// In-memory parse, nothing to resolve on disk.
		opts.SkipNormalization = true
		opts.SkipExtends = true
		// Parse every service; profile filtering is the resolver's job.
		opts.Profiles = []string{"*"}
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewValidationError("", "circular dependency detected", ErrCircularDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewValidationError("", "service must have an image", ErrServiceNoImage)
		}
		return nil, NewValidationError("", errStr, ErrInvalidYAML)
	}
	return project, nil
}

// serviceDeclarationOrder reads the key order of the top-level services
// block from the raw document.
func serviceDeclarationOrder(yamlContent string) []string {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(yamlContent), &root); err != nil {
		return nil
	}
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "services" {
			continue
		}
		services := doc.Content[i+1]
		if services.Kind != yaml.MappingNode {
			return nil
		}
		var names []string
		for j := 0; j+1 < len(services.Content); j += 2 {
			names = append(names, services.Content[j].Value)
		}
		return names
	}
	return nil
}

// checkUnsupportedFeatures rejects compose features devstack does not run.
func checkUnsupportedFeatures(project *types.Project) error {
	if len(project.Secrets) > 0 {
		return NewValidationError("secrets", "secrets are not supported", ErrInvalidYAML)
	}
	if len(project.Configs) > 0 {
		return NewValidationError("configs", "configs are not supported", ErrInvalidYAML)
	}
	for _, svc := range project.Services {
		if svc.Build != nil {
			return NewValidationError("services."+svc.Name+".build",
				"building images is not supported, reference a pre-built image", ErrServiceNoImage)
		}
	}
	return nil
}

// convertService converts a compose-go service to a ServiceSpec.
func convertService(svc types.ServiceConfig) (ServiceSpec, error) {
	service := ServiceSpec{
		Name:        svc.Name,
		Image:       svc.Image,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Environment: make(map[string]string),
		Labels:      make(map[string]string),
	}

	if service.Image == "" {
		return ServiceSpec{}, NewValidationError("services."+svc.Name, "service must have an image", ErrServiceNoImage)
	}

	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			if pub, err := strconv.ParseUint(p.Published, 10, 32); err == nil {
				published = uint32(pub)
			}
		}
		service.Ports = append(service.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
			HostIP:    p.HostIP,
		})
	}

	for k, v := range svc.Environment {
		if v != nil {
			service.Environment[k] = *v
		}
	}

	for _, v := range svc.Volumes {
		mount := VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		}
		switch v.Type {
		case "bind":
			mount.Type = VolumeMountTypeBind
		case "volume":
			mount.Type = VolumeMountTypeVolume
		case "tmpfs":
			mount.Type = VolumeMountTypeTmpfs
		default:
			// Infer type from source
			if strings.HasPrefix(v.Source, "./") || strings.HasPrefix(v.Source, "/") ||
				strings.HasPrefix(v.Source, "~") || strings.HasPrefix(v.Source, "${") {
				mount.Type = VolumeMountTypeBind
			} else {
				mount.Type = VolumeMountTypeVolume
			}
		}
		service.Volumes = append(service.Volumes, mount)
	}

	service.Profiles = append(service.Profiles, svc.Profiles...)

	for dep := range svc.DependsOn {
		service.DependsOn = append(service.DependsOn, dep)
	}

	service.Restart = RestartPolicy(svc.Restart)
	if service.Restart == "" {
		service.Restart = RestartNo
	}

	for k, v := range svc.Labels {
		service.Labels[k] = v
	}

	return service, nil
}

// convertVolume converts a compose-go volume to a Volume.
func convertVolume(name string, vol types.VolumeConfig) Volume {
	return Volume{
		Name:     name,
		Driver:   vol.Driver,
		External: bool(vol.External),
		Labels:   vol.Labels,
	}
}

// =============================================================================
// Parameter Parsing
// =============================================================================

// parseParameters extracts runtime parameter declarations from the
// top-level x-parameters block.
//
//	x-parameters:
//	  serve_path:
//	    env: SERVE_PATH
//	    default: ./public
func parseParameters(dict map[string]interface{}) ([]Parameter, error) {
	raw, ok := dict["x-parameters"]
	if !ok {
		return nil, nil
	}
	block, ok := raw.(map[string]interface{})
	if !ok {
		return nil, NewValidationError("x-parameters", "must be a mapping of parameter declarations", ErrInvalidParameter)
	}

	var params []Parameter
	for name, rawDecl := range block {
		if !parameterNameRegex.MatchString(name) {
			return nil, NewValidationError("x-parameters."+name, "parameter name must match [A-Za-z_][A-Za-z0-9_]*", ErrInvalidParameter)
		}
		param := Parameter{Name: name}
		if rawDecl != nil {
			decl, ok := rawDecl.(map[string]interface{})
			if !ok {
				return nil, NewValidationError("x-parameters."+name, "declaration must be a mapping", ErrInvalidParameter)
			}
			for key, val := range decl {
				str, ok := val.(string)
				if !ok {
					return nil, NewValidationError(
						fmt.Sprintf("x-parameters.%s.%s", name, key),
						"value must be a string", ErrInvalidParameter)
				}
				switch key {
				case "env":
					param.Env = str
				case "default":
					param.Default = str
				case "description":
					param.Description = str
				default:
					return nil, NewValidationError(
						fmt.Sprintf("x-parameters.%s.%s", name, key),
						"unknown declaration key", ErrInvalidParameter)
				}
			}
		}
		params = append(params, param)
	}

	// Map iteration order is random; keep declarations stable by name.
	sortParameters(params)
	return params, nil
}

func sortParameters(params []Parameter) {
	for i := 1; i < len(params); i++ {
		for j := i; j > 0 && params[j].Name < params[j-1].Name; j-- {
			params[j], params[j-1] = params[j-1], params[j]
		}
	}
}

var parameterNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// placeholderRegex matches ${NAME} and ${NAME:-default} placeholders.
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ReferencedParameters extracts parameter placeholders from service
// environment values and volume sources. Returns unique names in first-seen
// order, without the ${} wrapper.
func ReferencedParameters(def *StackDefinition) []string {
	seen := make(map[string]bool)
	var names []string
	record := func(value string) {
		for _, match := range placeholderRegex.FindAllStringSubmatch(value, -1) {
			if len(match) >= 2 && !seen[match[1]] {
				seen[match[1]] = true
				names = append(names, match[1])
			}
		}
	}
	for _, svc := range def.Services {
		for _, val := range svc.Environment {
			record(val)
		}
		for _, vol := range svc.Volumes {
			record(vol.Source)
		}
	}
	return names
}

// =============================================================================
// Validation
// =============================================================================

// ValidateStack performs semantic validation on a stack definition.
// It applies to parsed documents and to definitions built in code.
func ValidateStack(def *StackDefinition) error {
	if len(def.Services) == 0 {
		return ErrNoServices
	}

	seen := make(map[string]bool)
	for _, svc := range def.Services {
		if seen[svc.Name] {
			return NewValidationError("services."+svc.Name, "duplicate service name", ErrDuplicateService)
		}
		seen[svc.Name] = true
	}

	for _, svc := range def.Services {
		if svc.Image == "" {
			return NewValidationError("services."+svc.Name, "service must have an image", ErrServiceNoImage)
		}
		for i, port := range svc.Ports {
			field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
			if port.Target == 0 {
				return NewValidationError(field, "target port cannot be 0", ErrInvalidPort)
			}
			if port.Target > 65535 {
				return NewValidationError(field, "target port must be <= 65535", ErrInvalidPort)
			}
			if port.Published > 65535 {
				return NewValidationError(field, "published port must be <= 65535", ErrInvalidPort)
			}
		}
		for i, vol := range svc.Volumes {
			field := fmt.Sprintf("services.%s.volumes[%d]", svc.Name, i)
			if strings.TrimSpace(vol.Source) == "" {
				return NewValidationError(field, "volume source cannot be empty", ErrEmptyVolumePath)
			}
			if strings.TrimSpace(vol.Target) == "" {
				return NewValidationError(field, "volume target cannot be empty", ErrEmptyVolumePath)
			}
		}
		for _, dep := range svc.DependsOn {
			if !seen[dep] {
				return NewValidationError("services."+svc.Name+".depends_on",
					"unknown service "+strconv.Quote(dep), ErrUnknownDependency)
			}
		}
	}

	if err := detectCircularDependencies(def.Services); err != nil {
		return err
	}

	return validateParameterReferences(def)
}

// validateParameterReferences checks that every bare ${NAME} placeholder is
// declared under x-parameters. Placeholders with an inline ${NAME:-default}
// fallback are self-defaulting and allowed without a declaration.
func validateParameterReferences(def *StackDefinition) error {
	declared := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		declared[p.Name] = true
	}

	check := func(field, value string) error {
		for _, match := range placeholderRegex.FindAllStringSubmatch(value, -1) {
			name := match[1]
			hasInlineDefault := len(match) >= 3 && match[2] != ""
			if !declared[name] && !hasInlineDefault {
				return NewValidationError(field,
					"parameter "+strconv.Quote(name)+" is not declared in x-parameters", ErrUnknownParameter)
			}
		}
		return nil
	}

	for _, svc := range def.Services {
		for key, val := range svc.Environment {
			if err := check("services."+svc.Name+".environment."+key, val); err != nil {
				return err
			}
		}
		for i, vol := range svc.Volumes {
			field := fmt.Sprintf("services.%s.volumes[%d]", svc.Name, i)
			if err := check(field, vol.Source); err != nil {
				return err
			}
		}
	}
	return nil
}

// detectCircularDependencies detects cycles in service dependencies.
func detectCircularDependencies(services []ServiceSpec) error {
	deps := make(map[string][]string)
	for _, svc := range services {
		deps[svc.Name] = svc.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] {
			if hasCycle(svc.Name) {
				return ErrCircularDependency
			}
		}
	}

	return nil
}
