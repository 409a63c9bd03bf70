package factory

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

// =============================================================================
// EMBEDDED SCENARIOS
// =============================================================================
// Scenarios are fixtures shipped with the binary for demos. Adding one is
// dropping a YAML file into scenarios/; its file name is the scenario id.

//go:embed scenarios/*.yaml
var scenarioFiles embed.FS

// ScenarioInfo describes an embedded scenario without loading it.
type ScenarioInfo struct {
	ID          string
	Name        string
	Description string
}

// ListScenarios returns every embedded scenario, sorted by id.
func ListScenarios() ([]ScenarioInfo, error) {
	entries, err := scenarioFiles.ReadDir("scenarios")
	if err != nil {
		return nil, err
	}
	var out []ScenarioInfo
	for _, e := range entries {
		id := strings.TrimSuffix(e.Name(), ".yaml")
		fx, err := LoadScenario(id)
		if err != nil {
			return nil, err
		}
		out = append(out, ScenarioInfo{ID: id, Name: fx.Name, Description: fx.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadScenario parses the embedded scenario with the given id.
func LoadScenario(id string) (Fixture, error) {
	if id == "" || strings.ContainsAny(id, "/\\.") {
		return Fixture{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	data, err := scenarioFiles.ReadFile(path.Join("scenarios", id+".yaml"))
	if err != nil {
		return Fixture{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	fx, err := ParseFixture(data)
	if err != nil {
		return Fixture{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	return fx, nil
}
