package opaclient

import (
	"encoding/json"
	"fmt"
)

// Result is a decoded decision: nil, bool, float64, string, []any or
// map[string]any.
type Result = any

// decodeResult turns the raw decision into Res. An empty raw value means the
// decision was absent.
func decodeResult[Res any](raw json.RawMessage, rc *requestConfig) (Res, error) {
	var zero Res

	if rc.fromResult != nil {
		var result Result
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &result); err != nil {
				return zero, fmt.Errorf("opaclient: decode result: %w", err)
			}
		}
		out, err := rc.fromResult(result)
		if err != nil {
			return zero, err
		}
		if out == nil {
			return zero, nil
		}
		typed, ok := out.(Res)
		if !ok {
			return zero, resultTypeError[Res](out)
		}
		return typed, nil
	}

	if len(raw) == 0 {
		return zero, nil
	}
	var out Res
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("opaclient: decode result into %s: %w", typeName[Res](), err)
	}
	return out, nil
}
