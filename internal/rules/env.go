// Package rules evaluates the offline crop recommendation table. Each rule is a CEL
// predicate over the soil and weather readings.
package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/keerthanasaravanan18/college/internal/agri"
)

// Environment compiles rule predicates against the declared variables.
type Environment struct {
	env *cel.Env
}

// NewEnvironment declares soil, weather, location and history for rule conditions.
func NewEnvironment() (*Environment, error) {
	env, err := cel.NewEnv(
		cel.Variable("soil", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("weather", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("location", cel.StringType),
		cel.Variable("history", cel.StringType),
		cel.HomogeneousAggregateLiterals(),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: build environment: %w", err)
	}
	return &Environment{env: env}, nil
}

// Program is a compiled boolean predicate.
type Program struct {
	source  string
	program cel.Program
}

// Compile prepares expression, which must yield a bool.
func (e *Environment) Compile(expression string) (Program, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return Program{}, fmt.Errorf("rules: expression required")
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return Program{}, fmt.Errorf("rules: compile %q: %w", expr, issues.Err())
	}
	if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
		return Program{}, fmt.Errorf("rules: %q must return bool, got %s", expr, cel.FormatCELType(t))
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return Program{}, fmt.Errorf("rules: program %q: %w", expr, err)
	}
	return Program{source: expr, program: program}, nil
}

// Source returns the original expression for logging.
func (p Program) Source() string { return p.source }

// EvalBool runs the predicate against vars.
func (p Program) EvalBool(vars map[string]any) (bool, error) {
	if p.program == nil {
		return false, fmt.Errorf("rules: program not initialized")
	}
	val, _, err := p.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("rules: eval %q: %w", p.source, err)
	}
	switch v := val.(type) {
	case types.Bool:
		return bool(v), nil
	case ref.Val:
		if b, ok := v.Value().(bool); ok {
			return b, nil
		}
	}
	return false, fmt.Errorf("rules: %q yielded non-bool result %T", p.source, val)
}

// Activation flattens the readings into the variables rule predicates see.
func Activation(soil agri.SoilData, weather agri.WeatherData, location, history string) map[string]any {
	return map[string]any{
		"soil": map[string]any{
			"soilType":       soil.SoilType,
			"moistureStatus": soil.MoistureStatus,
			"moisture":       soil.Moisture,
			"ph":             soil.PH,
			"nitrogen":       soil.Nitrogen,
			"phosphorus":     soil.Phosphorus,
			"potassium":      soil.Potassium,
			"organicMatter":  soil.OrganicMatter,
		},
		"weather": map[string]any{
			"temp":     weather.Temp,
			"humidity": weather.Humidity,
			"rainfall": weather.Rainfall,
			"forecast": weather.Forecast,
		},
		"location": location,
		"history":  history,
	}
}
