package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInputsNotObject is returned when a batch inputs document is not a
// mapping of keys to inputs.
var ErrInputsNotObject = errors.New("cli: batch inputs must be an object")

// ParseInput decodes a JSON or YAML document. JSON is accepted because it is
// valid YAML.
func ParseInput(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("cli: parse input: %w", err)
	}
	return normalize(v), nil
}

// ReadInput reads and decodes a document from path. "-" reads from stdin.
func ReadInput(path string, stdin io.Reader) (any, error) {
	data, err := readFile(path, stdin)
	if err != nil {
		return nil, err
	}
	return ParseInput(data)
}

// ReadInputs reads a batch inputs document, an object of key to input.
func ReadInputs(path string, stdin io.Reader) (map[string]any, error) {
	v, err := ReadInput(path, stdin)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return map[string]any{}, nil
	}
	inputs, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrInputsNotObject, v)
	}
	return inputs, nil
}

func readFile(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("cli: read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: read input file: %w", err)
	}
	return data, nil
}

// normalize converts YAML mappings with non-string keys into
// map[string]any so the value can be encoded as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
