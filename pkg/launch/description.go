package launch

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Description errors.
var (
	ErrMissingArgument = errors.New("argument has no value")
	ErrUnknownArgument = errors.New("unknown argument")
	ErrBadOverride     = errors.New("override must be name:=value")
)

// Error is a failure to load or resolve a description.
type Error struct {
	File    string
	Node    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.Node != "" {
		fmt.Fprintf(&b, "node %s: ", e.Node)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Argument is a declared launch argument.
type Argument struct {
	Name        string  `yaml:"name"`
	Default     *string `yaml:"default,omitempty"`
	Description string  `yaml:"description,omitempty"`
}

// NodeSpec describes one node to start.
type NodeSpec struct {
	Package    string            `yaml:"package"`
	Executable string            `yaml:"executable"`
	Name       string            `yaml:"name"`
	Namespace  string            `yaml:"namespace,omitempty"`
	Parameters map[string]any    `yaml:"parameters,omitempty"`
	Remappings map[string]string `yaml:"remappings,omitempty"`
}

// Description is a parsed launch file.
type Description struct {
	Arguments []Argument `yaml:"arguments,omitempty"`
	Nodes     []NodeSpec `yaml:"nodes"`
}

// Parse parses and validates a description.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, &Error{Message: "failed to parse YAML", Cause: err}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads a description from path.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Message: "failed to read file", Cause: err}
	}
	d, err := Parse(data)
	if err != nil {
		var le *Error
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, err
	}
	return d, nil
}

// Validate checks required fields and argument declarations.
func (d *Description) Validate() error {
	if len(d.Nodes) == 0 {
		return &Error{Message: "description has no nodes"}
	}
	seen := make(map[string]bool, len(d.Arguments))
	for _, a := range d.Arguments {
		if a.Name == "" {
			return &Error{Message: "argument without name"}
		}
		if seen[a.Name] {
			return &Error{Message: fmt.Sprintf("argument %q declared twice", a.Name)}
		}
		seen[a.Name] = true
	}
	for i, n := range d.Nodes {
		if n.Executable == "" {
			return &Error{Node: fmt.Sprintf("#%d", i), Message: "executable is required"}
		}
		if n.Name == "" {
			return &Error{Node: fmt.Sprintf("#%d", i), Message: "name is required"}
		}
	}
	return nil
}

// ParseOverrides parses "name:=value" pairs.
func ParseOverrides(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, ":=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadOverride, arg)
		}
		out[name] = value
	}
	return out, nil
}

var varPattern = regexp.MustCompile(`\$\(var\s+([A-Za-z_][A-Za-z0-9_]*)\s*\)`)

// Resolve returns a copy of d with every $(var name) substituted. An
// override for an undeclared argument is an error, as is an argument
// with neither default nor override.
func (d *Description) Resolve(overrides map[string]string) (*Description, error) {
	values := make(map[string]string, len(d.Arguments))
	declared := make(map[string]bool, len(d.Arguments))
	for _, a := range d.Arguments {
		declared[a.Name] = true
		if a.Default != nil {
			values[a.Name] = *a.Default
		}
	}
	for name, v := range overrides {
		if !declared[name] {
			return nil, &Error{Message: fmt.Sprintf("override %q", name), Cause: ErrUnknownArgument}
		}
		values[name] = v
	}

	sub := func(s string) (string, error) {
		var missing string
		out := varPattern.ReplaceAllStringFunc(s, func(m string) string {
			name := varPattern.FindStringSubmatch(m)[1]
			v, ok := values[name]
			if !ok && missing == "" {
				missing = name
			}
			return v
		})
		if missing != "" {
			return "", fmt.Errorf("%w: %s", ErrMissingArgument, missing)
		}
		return out, nil
	}

	resolved := &Description{Arguments: d.Arguments}
	for _, n := range d.Nodes {
		rn, err := resolveNode(n, sub)
		if err != nil {
			return nil, &Error{Node: n.Name, Message: "substitution failed", Cause: err}
		}
		resolved.Nodes = append(resolved.Nodes, rn)
	}
	return resolved, nil
}

func resolveNode(n NodeSpec, sub func(string) (string, error)) (NodeSpec, error) {
	var err error
	out := NodeSpec{Package: n.Package, Executable: n.Executable}
	for _, f := range []struct {
		dst *string
		src string
	}{{&out.Name, n.Name}, {&out.Namespace, n.Namespace}} {
		if *f.dst, err = sub(f.src); err != nil {
			return out, err
		}
	}

	if n.Parameters != nil {
		out.Parameters = make(map[string]any, len(n.Parameters))
		for k, v := range n.Parameters {
			if s, ok := v.(string); ok {
				if v, err = sub(s); err != nil {
					return out, err
				}
			}
			out.Parameters[k] = v
		}
	}
	if n.Remappings != nil {
		out.Remappings = make(map[string]string, len(n.Remappings))
		for from, to := range n.Remappings {
			if to, err = sub(to); err != nil {
				return out, err
			}
			out.Remappings[from] = to
		}
	}
	return out, nil
}
