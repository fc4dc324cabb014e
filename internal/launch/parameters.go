package launch

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parameter is a single node parameter passed as "-p name:=value".
type Parameter struct {
	Name  string
	Value any
}

// Parameters is an ordered list of node parameters. Later entries with
// the same name override earlier ones, the same way repeated "-p"
// arguments do.
type Parameters []Parameter

// Get returns the last value set for name.
func (p Parameters) Get(name string) (any, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Name == name {
			return p[i].Value, true
		}
	}
	return nil, false
}

// Args renders every parameter as "name:=value".
func (p Parameters) Args() ([]string, error) {
	args := make([]string, 0, len(p))
	for _, param := range p {
		v, err := FormatValue(param.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", param.Name, err)
		}
		args = append(args, param.Name+":="+v)
	}
	return args, nil
}

// FormatValue renders a parameter value in the YAML flow syntax the node
// parses on the command line. Strings are always single-quoted so that
// values like "true" or "1" keep their string type.
func FormatValue(v any) (string, error) {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		switch {
		case math.IsNaN(val):
			return ".nan", nil
		case math.IsInf(val, 1):
			return ".inf", nil
		case math.IsInf(val, -1):
			return "-.inf", nil
		}
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, nil
	case string:
		return quote(val), nil
	case []string:
		items := make([]string, len(val))
		for i, s := range val {
			items[i] = quote(s)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			if _, nested := item.([]any); nested {
				return "", fmt.Errorf("nested lists are not supported")
			}
			s, err := FormatValue(item)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// UnmarshalYAML accepts either a single mapping or a list of mappings,
// keeping the order the parameters appear in the file.
func (p *Parameters) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		return p.appendMapping(value)
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: parameter entry must be a mapping", item.Line)
			}
			if err := p.appendMapping(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: parameters must be a mapping or a list of mappings", value.Line)
	}
}

func (p *Parameters) appendMapping(m *yaml.Node) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		name := m.Content[i].Value

		var raw any
		if err := m.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		v, err := normalizeValue(raw)
		if err != nil {
			return fmt.Errorf("line %d: parameter %q: %w", m.Content[i+1].Line, name, err)
		}
		*p = append(*p, Parameter{Name: name, Value: v})
	}
	return nil
}

// normalizeValue converts decoded YAML into the value types FormatValue
// understands. Lists of strings become []string.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case bool, int, int64, float64, string:
		return val, nil
	case []any:
		allStrings := true
		for _, item := range val {
			switch item.(type) {
			case string:
			case bool, int, int64, float64:
				allStrings = false
			default:
				return nil, fmt.Errorf("unsupported list element type %T", item)
			}
		}
		if !allStrings || len(val) == 0 {
			return val, nil
		}
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = item.(string)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
