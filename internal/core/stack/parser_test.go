package stack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const minimalValidSpec = `
services:
  cache:
    image: redis:7-alpine
`

const devStackSpec = `
x-parameters:
  serve_path:
    env: SERVE_PATH
    default: ./public
    description: Directory served by nginx

services:
  postgres:
    image: postgres:16-alpine
    ports:
      - "5432:5432"
    environment:
      POSTGRES_USER: dev
      POSTGRES_PASSWORD: devpass
    volumes:
      - pgdata:/var/lib/postgresql/data
    restart: unless-stopped

  redis:
    image: redis:7-alpine
    ports:
      - "6379:6379"
    volumes:
      - redisdata:/data
    restart: unless-stopped

  nginx:
    image: nginx:alpine
    profiles:
      - production-test
    ports:
      - "8080:80"
    volumes:
      - type: bind
        source: ${serve_path}
        target: /usr/share/nginx/html
        read_only: true
    depends_on:
      - postgres
      - redis
    restart: unless-stopped

volumes:
  pgdata:
  redisdata:
`

const circularSpec = `
services:
  a:
    image: img:1
    depends_on:
      - b
  b:
    image: img:1
    depends_on:
      - a
`

const undeclaredParameterSpec = `
services:
  web:
    image: nginx:alpine
    environment:
      HTML_ROOT: ${serve_path}
`

const inlineDefaultSpec = `
services:
  web:
    image: nginx:alpine
    environment:
      HTML_ROOT: ${serve_path:-./public}
`

// =============================================================================
// ParseStackSpec Tests
// =============================================================================

func TestParseStackSpec_EmptyInput(t *testing.T) {
	_, err := ParseStackSpec("")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = ParseStackSpec("   \n\t  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseStackSpec_InvalidYAML(t *testing.T) {
	_, err := ParseStackSpec("services:\n  - [unbalanced")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseStackSpec_Minimal(t *testing.T) {
	def, err := ParseStackSpec(minimalValidSpec)
	require.NoError(t, err)
	require.Len(t, def.Services, 1)
	assert.Equal(t, "cache", def.Services[0].Name)
	assert.Equal(t, "redis:7-alpine", def.Services[0].Image)
	assert.True(t, def.Services[0].AlwaysOn())
	assert.Equal(t, RestartNo, def.Services[0].Restart)
}

func TestParseStackSpec_DevStack(t *testing.T) {
	def, err := ParseStackSpec(devStackSpec)
	require.NoError(t, err)

	require.Len(t, def.Services, 3)
	// Declaration order is preserved.
	assert.Equal(t, "postgres", def.Services[0].Name)
	assert.Equal(t, "redis", def.Services[1].Name)
	assert.Equal(t, "nginx", def.Services[2].Name)

	pg := def.Service("postgres")
	require.NotNil(t, pg)
	assert.Equal(t, "postgres:16-alpine", pg.Image)
	assert.Equal(t, "dev", pg.Environment["POSTGRES_USER"])
	require.Len(t, pg.Ports, 1)
	assert.Equal(t, uint32(5432), pg.Ports[0].Target)
	assert.Equal(t, uint32(5432), pg.Ports[0].Published)
	assert.Equal(t, RestartUnlessStopped, pg.Restart)
	require.Len(t, pg.Volumes, 1)
	assert.Equal(t, VolumeMountTypeVolume, pg.Volumes[0].Type)
	assert.Equal(t, "pgdata", pg.Volumes[0].Source)

	nginx := def.Service("nginx")
	require.NotNil(t, nginx)
	assert.False(t, nginx.AlwaysOn())
	assert.True(t, nginx.HasProfile("production-test"))
	assert.ElementsMatch(t, []string{"postgres", "redis"}, nginx.DependsOn)
	require.Len(t, nginx.Volumes, 1)
	assert.Equal(t, VolumeMountTypeBind, nginx.Volumes[0].Type)
	assert.Equal(t, "${serve_path}", nginx.Volumes[0].Source)
	assert.True(t, nginx.Volumes[0].ReadOnly)

	assert.Len(t, def.Volumes, 2)

	require.Len(t, def.Parameters, 1)
	assert.Equal(t, "serve_path", def.Parameters[0].Name)
	assert.Equal(t, "SERVE_PATH", def.Parameters[0].Env)
	assert.Equal(t, "./public", def.Parameters[0].Default)

	profiles := def.Profiles()
	assert.True(t, profiles["production-test"])
	assert.Len(t, profiles, 1)
}

func TestParseStackSpec_NoServices(t *testing.T) {
	_, err := ParseStackSpec("volumes:\n  data:\n")
	require.Error(t, err)
}

func TestParseStackSpec_CircularDependency(t *testing.T) {
	_, err := ParseStackSpec(circularSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
}

func TestParseStackSpec_UndeclaredParameter(t *testing.T) {
	_, err := ParseStackSpec(undeclaredParameterSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownParameter)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Field, "services.web.environment")
}

func TestParseStackSpec_InlineDefaultNeedsNoDeclaration(t *testing.T) {
	def, err := ParseStackSpec(inlineDefaultSpec)
	require.NoError(t, err)
	assert.Empty(t, def.Parameters)
}

func TestParseStackSpec_BuildNotSupported(t *testing.T) {
	spec := `
services:
  app:
    build:
      context: ./app
`
	_, err := ParseStackSpec(spec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceNoImage)
}

// =============================================================================
// ValidateStack Tests
// =============================================================================

func TestValidateStack_DuplicateNames(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{Name: "db", Image: "postgres:16"},
			{Name: "db", Image: "postgres:15"},
		},
	}
	err := ValidateStack(def)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateService)
}

func TestValidateStack_UniqueNamesAccepted(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{Name: "db", Image: "postgres:16"},
			{Name: "cache", Image: "redis:7"},
			{Name: "web", Image: "nginx:alpine"},
		},
	}
	assert.NoError(t, ValidateStack(def))
}

func TestValidateStack_EmptyVolumePath(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{
				Name:  "db",
				Image: "postgres:16",
				Volumes: []VolumeMount{
					{Type: VolumeMountTypeBind, Source: "  ", Target: "/data"},
				},
			},
		},
	}
	err := ValidateStack(def)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyVolumePath)
}

func TestValidateStack_PortRange(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{Name: "db", Image: "postgres:16", Ports: []Port{{Target: 0}}},
		},
	}
	err := ValidateStack(def)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPort)

	def.Services[0].Ports = []Port{{Target: 70000}}
	assert.ErrorIs(t, ValidateStack(def), ErrInvalidPort)
}

func TestValidateStack_UnknownDependency(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{Name: "web", Image: "nginx:alpine", DependsOn: []string{"api"}},
		},
	}
	err := ValidateStack(def)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestValidateStack_SelfDependency(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{Name: "web", Image: "nginx:alpine", DependsOn: []string{"web"}},
		},
	}
	err := ValidateStack(def)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
}

// =============================================================================
// ReferencedParameters Tests
// =============================================================================

func TestReferencedParameters(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{
			{
				Name:  "web",
				Image: "nginx:alpine",
				Environment: map[string]string{
					"ROOT": "${serve_path}",
					"MODE": "static",
				},
				Volumes: []VolumeMount{
					{Type: VolumeMountTypeBind, Source: "${serve_path}", Target: "/html"},
					{Type: VolumeMountTypeBind, Source: "${cert_dir:-/tmp/certs}", Target: "/certs"},
				},
			},
		},
	}
	names := ReferencedParameters(def)
	assert.ElementsMatch(t, []string{"serve_path", "cert_dir"}, names)
}

func TestReferencedParameters_None(t *testing.T) {
	def := &StackDefinition{
		Services: []ServiceSpec{{Name: "db", Image: "postgres:16"}},
	}
	assert.Empty(t, ReferencedParameters(def))
}
