package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/agentt/internal/model"
)

// entitiesFile is the top-level shape of entities.yaml.
type entitiesFile struct {
	Entities []model.Entity `yaml:"entities"`
}

// LoadEntities parses the entity definitions file. Entities with no
// explicit active flag default to active.
func LoadEntities(path string) ([]model.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read entities file %s", path)
	}

	var f entitiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse entities file %s", path)
	}
	if len(f.Entities) == 0 {
		return nil, eris.Errorf("config: no entities defined in %s", path)
	}

	seen := make(map[string]bool, len(f.Entities))
	for i := range f.Entities {
		e := &f.Entities[i]
		if e.Slug == "" {
			return nil, eris.Errorf("config: entity %d has no slug", i)
		}
		if seen[e.Slug] {
			return nil, eris.Errorf("config: duplicate entity slug %q", e.Slug)
		}
		seen[e.Slug] = true
		if e.Name == "" {
			e.Name = e.Slug
		}
		e.Active = true
	}

	return f.Entities, nil
}
