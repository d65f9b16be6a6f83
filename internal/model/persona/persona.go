package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var embeddedPersonas []byte

// Definition bundles the generation parameters and prompt text of one soul.
type Definition struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Title        string  `json:"title,omitempty" yaml:"title"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	MaxTokens    int     `json:"maxTokens" yaml:"maxTokens"`
	SystemPrompt string  `json:"-" yaml:"systemPrompt"`
	Greeting     string  `json:"greeting" yaml:"greeting"`
}

type document struct {
	Personas []Definition `yaml:"personas"`
}

// Seed returns the personas shipped with the binary. It panics on invalid
// embedded data since that is a build defect, not a runtime condition.
func Seed() []Definition {
	defs, err := Parse(embeddedPersonas)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded configuration: %v", err))
	}
	return defs
}

// Parse decodes and validates a YAML persona document.
func Parse(data []byte) ([]Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("no personas defined")
	}

	seenNames := make(map[string]struct{}, len(doc.Personas))
	seenIDs := make(map[string]struct{}, len(doc.Personas))
	defs := make([]Definition, 0, len(doc.Personas))
	for i, def := range doc.Personas {
		def.Name = strings.TrimSpace(def.Name)
		def.SystemPrompt = strings.TrimSpace(def.SystemPrompt)
		def.Greeting = strings.TrimSpace(def.Greeting)
		if def.ID == "" {
			def.ID = Slug(def.Name)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("persona #%d: %w", i+1, err)
		}
		if _, dup := seenNames[def.Name]; dup {
			return nil, fmt.Errorf("persona #%d: duplicate name %q", i+1, def.Name)
		}
		if _, dup := seenIDs[def.ID]; dup {
			return nil, fmt.Errorf("persona #%d: duplicate id %q", i+1, def.ID)
		}
		seenNames[def.Name] = struct{}{}
		seenIDs[def.ID] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}

// Validate checks the invariants every persona must hold.
func (d Definition) Validate() error {
	switch {
	case d.Name == "":
		return errors.New("name is required")
	case d.ID == "":
		return fmt.Errorf("%s: id is required", d.Name)
	case d.Temperature < 0 || d.Temperature > 1:
		return fmt.Errorf("%s: temperature %.2f out of range [0,1]", d.Name, d.Temperature)
	case d.MaxTokens <= 0:
		return fmt.Errorf("%s: maxTokens must be positive", d.Name)
	case d.SystemPrompt == "":
		return fmt.Errorf("%s: systemPrompt is required", d.Name)
	case d.Greeting == "":
		return fmt.Errorf("%s: greeting is required", d.Name)
	}
	return nil
}

// Slug derives a URL-safe identifier from a display name,
// e.g. "Leonardo da Vinci" -> "leonardo-da-vinci".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
