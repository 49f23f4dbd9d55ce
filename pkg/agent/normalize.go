package agent

import (
	"encoding/json"
	"strings"

	"github.com/bububa/ljson"
	"github.com/kaptinlin/jsonrepair"

	"github.com/tombee/mcpagent/internal/mcp"
	"github.com/tombee/mcpagent/pkg/errors"
)

// NormalizeArguments coerces model-supplied arguments into a mapping that
// matches shape.
//
// A mapping is used as is. Text that does not start with "{" is a single
// unstructured value; other text is repaired and decoded leniently, and
// anything after the first complete object is ignored. A non-mapping value
// fills the only declared parameter, or is dropped when there is not
// exactly one. The result must have exactly as many entries as shape
// declares properties.
func NormalizeArguments(raw any, shape mcp.ParameterShape) (map[string]any, error) {
	value, err := decodeArguments(raw)
	if err != nil {
		return nil, err
	}

	args, ok := value.(map[string]any)
	if !ok {
		args = map[string]any{}
		if names := shape.PropertyNames(); len(names) == 1 {
			args[names[0]] = value
		}
	}

	if len(args) != len(shape.Properties) {
		return nil, &errors.ArgumentMismatchError{
			Expected: len(shape.Properties),
			Got:      len(args),
		}
	}
	return args, nil
}

func decodeArguments(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		if v == nil {
			return map[string]any{}, nil
		}
		return v, nil
	case json.RawMessage:
		return decodeText(string(v))
	case []byte:
		return decodeText(string(v))
	case string:
		return decodeText(v)
	default:
		return v, nil
	}
}

func decodeText(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return text, nil
	}

	decoded, err := decodeObject(trimmed)
	if err != nil {
		return nil, &errors.ArgumentMismatchError{Cause: err}
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return decoded, nil
}

// decodeObject decodes loose JSON with ljson. When the object is followed by
// more values or prose, only the leading object is kept.
func decodeObject(text string) (map[string]any, error) {
	var decoded map[string]any
	err := ljson.Unmarshal([]byte(text), &decoded)
	if err == nil {
		return decoded, nil
	}

	_, repairErr := jsonrepair.Repair(text)
	var trailing *jsonrepair.Error
	if !errors.Is(repairErr, jsonrepair.ErrUnexpectedCharacter) || !errors.As(repairErr, &trailing) {
		return nil, err
	}

	runes := []rune(text)
	if trailing.Position <= 0 || trailing.Position > len(runes) {
		return nil, err
	}
	leading, repairErr := jsonrepair.Repair(string(runes[:trailing.Position]))
	if repairErr != nil {
		return nil, err
	}

	decoded = nil
	if err := ljson.Unmarshal([]byte(leading), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
