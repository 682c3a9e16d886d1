package skills

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const headerFence = "---"

// Override is a parsed override document. Nil slices and pointers mean
// the field was absent and the default is kept.
type Override struct {
	Description     *string  `yaml:"description"`
	SystemPrompt    *string  `yaml:"system_prompt"`
	RequiredOutputs []string `yaml:"required_outputs"`
	Constraints     []string `yaml:"constraints"`
	Dependencies    []Role   `yaml:"dependencies"`

	// Body is the free-form text after the header. A non-empty body
	// replaces the system prompt.
	Body string `yaml:"-"`
	// BodyOnly is set when the document had no header section at all.
	BodyOnly bool `yaml:"-"`
}

// sections is the result of the first pass.
type sections struct {
	header    []byte
	body      string
	hasHeader bool
}

// ParseOverride parses an override document in two passes: split the
// optional fenced header from the body, then decode the header.
func ParseOverride(content []byte) (*Override, error) {
	sec, err := split(content)
	if err != nil {
		return nil, err
	}
	if !sec.hasHeader {
		return bodyOnly(sec.body), nil
	}
	return decodeHeader(sec)
}

// split is the first pass. A document whose first non-blank line is not
// the fence has no header.
func split(content []byte) (sections, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	trimmed := bytes.TrimLeft(normalized, " \t\n")
	if !bytes.HasPrefix(trimmed, []byte(headerFence+"\n")) {
		return sections{body: string(normalized)}, nil
	}
	rest := trimmed[len(headerFence)+1:]

	// The closing fence may also be the last line of the file.
	if bytes.HasPrefix(rest, []byte(headerFence+"\n")) || bytes.Equal(bytes.TrimRight(rest, "\n"), []byte(headerFence)) {
		return sections{hasHeader: true, body: string(bytes.TrimPrefix(rest, []byte(headerFence)))}, nil
	}
	idx := bytes.Index(rest, []byte("\n"+headerFence+"\n"))
	if idx < 0 {
		if bytes.HasSuffix(bytes.TrimRight(rest, "\n"), []byte("\n"+headerFence)) {
			end := bytes.LastIndex(rest, []byte("\n"+headerFence))
			return sections{header: rest[:end], hasHeader: true}, nil
		}
		return sections{}, fmt.Errorf("%w: header opened but never closed", ErrMalformedHeader)
	}
	return sections{
		header:    rest[:idx],
		body:      string(rest[idx+len(headerFence)+2:]),
		hasHeader: true,
	}, nil
}

// bodyOnly handles documents without a header: the whole text replaces
// the system prompt and every other field keeps its default.
func bodyOnly(body string) *Override {
	return &Override{Body: strings.TrimSpace(body), BodyOnly: true}
}

// decodeHeader is the second pass over key/value and list lines.
func decodeHeader(sec sections) (*Override, error) {
	o := &Override{Body: strings.TrimSpace(sec.body)}
	if len(bytes.TrimSpace(sec.header)) == 0 {
		return o, nil
	}
	if err := yaml.Unmarshal(sec.header, o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return o, nil
}

// Apply merges o over base field by field and returns a new definition.
func (o *Override) Apply(base *Definition) *Definition {
	out := base.clone()
	if o.Description != nil {
		out.Description = *o.Description
	}
	if o.SystemPrompt != nil {
		out.SystemPrompt = *o.SystemPrompt
	}
	if o.RequiredOutputs != nil {
		out.RequiredOutputs = append([]string(nil), o.RequiredOutputs...)
	}
	if o.Constraints != nil {
		out.Constraints = append([]string(nil), o.Constraints...)
	}
	if o.Dependencies != nil {
		out.Dependencies = append([]Role(nil), o.Dependencies...)
	}
	if o.Body != "" {
		out.SystemPrompt = o.Body
	}
	return out
}
