package scenario

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ocularqa/ocular/api/schemas"
)

// Load reads a scenario definition from a YAML file and validates it.
func Load(path string) (schemas.Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)

	var scenario schemas.Scenario
	if err := v.ReadInConfig(); err != nil {
		return scenario, fmt.Errorf("failed to read scenario file %q: %w", path, err)
	}
	if err := v.Unmarshal(&scenario); err != nil {
		return scenario, fmt.Errorf("failed to parse scenario file %q: %w", path, err)
	}
	if err := Validate(scenario); err != nil {
		return scenario, fmt.Errorf("invalid scenario %q: %w", path, err)
	}
	return scenario, nil
}

// Validate checks the scenario for structural problems before any browser
// launches: unknown step kinds, missing required fields, and steps routed
// to sessions the scenario never declares.
func Validate(scenario schemas.Scenario) error {
	if len(scenario.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}

	declared := make(map[string]bool, len(scenario.Sessions))
	for _, name := range scenario.Sessions {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("scenario declares an empty session name")
		}
		if declared[name] {
			return fmt.Errorf("scenario declares session %q twice", name)
		}
		declared[name] = true
	}
	if len(declared) == 0 {
		declared[defaultSession] = true
	}

	for i, step := range scenario.Steps {
		switch {
		case step.Session == "" && len(scenario.Sessions) <= 1:
			// Routes to the sole session.
		case !declared[step.Session]:
			return fmt.Errorf("step %d references undeclared session %q", i, step.Session)
		}
		switch step.Kind {
		case schemas.StepNavigate:
			if step.URL == "" {
				return fmt.Errorf("step %d: navigate requires a url", i)
			}
		case schemas.StepWait:
			if step.DurationMs <= 0 {
				return fmt.Errorf("step %d: wait requires a positive duration_ms", i)
			}
		case schemas.StepClick:
			if step.TargetText == "" {
				return fmt.Errorf("step %d: click requires target_text", i)
			}
		case schemas.StepVerify:
			if step.TargetText == "" {
				return fmt.Errorf("step %d: verify requires target_text", i)
			}
		case schemas.StepWaitForState:
			if step.TargetState == "" {
				return fmt.Errorf("step %d: wait_for_state requires target_state", i)
			}
		case schemas.StepScreenshot:
			// name is optional; a timestamped default is used.
		default:
			return fmt.Errorf("step %d: unknown step kind %q", i, step.Kind)
		}
	}
	return nil
}
