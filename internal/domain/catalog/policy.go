package catalog

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

const PolicyFileEnv = "HIERARCHY_POLICY_FILE"

//go:embed hierarchy_policy.yaml
var policyFS embed.FS

type yamlPolicy struct {
	Levels map[string]yamlLevelPolicy `yaml:"levels"`
}

type yamlLevelPolicy struct {
	DeletePolicy             string `yaml:"delete_policy"`
	RequireChildrenToPublish *bool  `yaml:"require_children_to_publish"`
}

// LoadHierarchy builds the hierarchy and applies the policy file named by
// HIERARCHY_POLICY_FILE, or the embedded default when unset.
func LoadHierarchy(log *logger.Logger) (*Hierarchy, error) {
	data, src, err := readPolicy()
	if err != nil {
		return nil, err
	}
	h, err := ApplyPolicy(defaultLevels(), data)
	if err != nil {
		return nil, fmt.Errorf("hierarchy policy %s: %w", src, err)
	}
	if log != nil {
		for _, l := range h.Levels() {
			s := h.MustSpec(l)
			log.Debug("Hierarchy level", "level", s.Level, "delete_policy", s.DeletePolicy, "require_children_to_publish", s.RequireChildrenToPublish, "source", src)
		}
	}
	return h, nil
}

func readPolicy() ([]byte, string, error) {
	if path := strings.TrimSpace(os.Getenv(PolicyFileEnv)); path != "" {
		b, err := os.ReadFile(path)
		return b, path, err
	}
	b, err := policyFS.ReadFile("hierarchy_policy.yaml")
	return b, "embedded", err
}

// ApplyPolicy overlays YAML policy onto specs. Unknown levels are rejected so
// a typo cannot silently leave a default in place.
func ApplyPolicy(specs []LevelSpec, data []byte) (*Hierarchy, error) {
	var doc yamlPolicy
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	idx := make(map[Level]int, len(specs))
	for i, s := range specs {
		idx[s.Level] = i
	}
	for name, lp := range doc.Levels {
		i, ok := idx[Level(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown level %q", name)
		}
		if lp.DeletePolicy != "" {
			p := DeletePolicy(strings.TrimSpace(lp.DeletePolicy))
			if !p.Valid() {
				return nil, fmt.Errorf("level %q: invalid delete_policy %q", name, lp.DeletePolicy)
			}
			specs[i].DeletePolicy = p
		}
		if lp.RequireChildrenToPublish != nil {
			if *lp.RequireChildrenToPublish && specs[i].ChildLevel == "" {
				return nil, errors.New("level " + name + " has no children to require")
			}
			specs[i].RequireChildrenToPublish = *lp.RequireChildrenToPublish
		}
	}
	return NewHierarchy(specs)
}
