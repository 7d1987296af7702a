package access

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"carepilot/internal/actions"
)

// PolicyFile is the on-disk shape of a minimum-necessary override file.
//
//	actions:
//	  get_client_notes: [client_id, limit]
type PolicyFile struct {
	Actions map[string][]string `yaml:"actions"`
}

// Policy maps an action to the parameter names it may touch.
type Policy struct {
	allowed map[string][]string
}

// DefaultPolicy declares each catalogue action's own parameter list.
func DefaultPolicy() *Policy {
	p := &Policy{allowed: make(map[string][]string)}
	for _, name := range actions.Names() {
		p.allowed[string(name)] = actions.Fields(name)
	}
	return p
}

// LoadPolicy reads overrides from path and layers them over DefaultPolicy.
// An empty path or a missing file yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read minimum-necessary policy: %w", err)
	}
	if err := p.merge(data); err != nil {
		return nil, err
	}
	return p, nil
}

// ParsePolicy layers YAML overrides over DefaultPolicy.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	if err := p.merge(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) merge(data []byte) error {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse minimum-necessary policy: %w", err)
	}
	for name, fields := range file.Actions {
		if len(fields) == 0 {
			return fmt.Errorf("minimum-necessary policy: action %q declares no fields", name)
		}
		p.allowed[name] = slices.Clone(fields)
	}
	return nil
}

// Allowed returns the declared field set for action.
func (p *Policy) Allowed(action string) ([]string, bool) {
	fields, ok := p.allowed[action]
	return fields, ok
}
