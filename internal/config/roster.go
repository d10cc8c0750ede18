package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sos_unifio/backend/internal/models"
)

// Roster is the seed file named by RESPONDERS_FILE.
type Roster struct {
	Responders []models.Responder `yaml:"responders"`
	Locations  []models.Location  `yaml:"locations"`
}

// LoadRoster reads and validates a roster seed. Responders default to
// available when the field is omitted.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, err
	}
	var raw Roster
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Roster{}, fmt.Errorf("parse roster %s: %w", path, err)
	}
	// second pass tells an omitted available field from an explicit false
	var flags struct {
		Responders []struct {
			Available *bool `yaml:"available"`
		} `yaml:"responders"`
	}
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return Roster{}, fmt.Errorf("parse roster %s: %w", path, err)
	}

	out := Roster{Locations: raw.Locations}
	seen := map[string]bool{}
	for i, r := range raw.Responders {
		if r.ID == "" {
			return Roster{}, fmt.Errorf("roster %s: responder %d has no id", path, i)
		}
		if seen[r.ID] {
			return Roster{}, fmt.Errorf("roster %s: duplicate responder %s", path, r.ID)
		}
		seen[r.ID] = true
		switch r.Role {
		case models.RoleSocorrista, models.RoleColaborador, models.RoleProfessor, models.RoleAluno, models.RoleAdmin:
		default:
			return Roster{}, fmt.Errorf("roster %s: responder %s has unknown role %q", path, r.ID, r.Role)
		}
		if flags.Responders[i].Available == nil {
			r.Available = true
		}
		out.Responders = append(out.Responders, r)
	}
	return out, nil
}
