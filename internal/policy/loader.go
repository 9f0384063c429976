package policy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// Parse decodes and validates a YAML policy document. Unknown fields are
// rejected so typos do not silently drop lexicon entries.
func Parse(data []byte) (*Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, domain.NewValidationError("policy", "parse: "+err.Error())
	}
	if p.SafetyBuffer.Position == "" {
		p.SafetyBuffer.Position = PositionPrefix
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	canonicalizeActions(&p)
	return &p, nil
}

// canonicalizeActions rewrites status-name aliases in privileged_actions to
// action names. The policy has already been validated.
func canonicalizeActions(p *Policy) {
	for level, actions := range p.PrivilegedActions {
		out := make([]domain.Action, 0, len(actions))
		for _, a := range actions {
			canonical, _ := domain.ParseAction(string(a))
			out = append(out, canonical)
		}
		p.PrivilegedActions[level] = out
	}
}

// LoadFile reads and parses a policy file.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(data)
}
