package opaclient

// InputConverter is implemented by values that supply their own input
// document. Its result is sent instead of the value itself.
type InputConverter interface {
	ToInput() any
}

func resolveInput(v any) any {
	if conv, ok := v.(InputConverter); ok {
		return conv.ToInput()
	}
	return v
}

func resolveInputs(inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for key, v := range inputs {
		out[key] = resolveInput(v)
	}
	return out
}
