package langwatch

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxStringLength caps every string captured into span payloads.
// Inputs and outputs are recursively truncated to this many characters
// before serialization so a single oversized prompt cannot blow up the
// export pipeline.
const DefaultMaxStringLength = 5000

// classifyValue normalizes a raw value into the tagged {type, value}
// envelope the backend expects. Already-wrapped envelopes pass through.
func classifyValue(v any) SpanInputOutput {
	switch val := v.(type) {
	case nil:
		return SpanInputOutput{Type: "json", Value: nil}
	case SpanInputOutput:
		return val
	case *SpanInputOutput:
		if val == nil {
			return SpanInputOutput{Type: "json", Value: nil}
		}
		return *val
	case string:
		return SpanInputOutput{Type: "text", Value: val}
	case []ChatMessage:
		return SpanInputOutput{Type: "chat_messages", Value: val}
	case ChatMessage:
		return SpanInputOutput{Type: "chat_messages", Value: []ChatMessage{val}}
	case Evaluation:
		return SpanInputOutput{Type: "evaluation", Value: val}
	case *Evaluation:
		return SpanInputOutput{Type: "evaluation", Value: val}
	case GuardrailResult:
		return SpanInputOutput{Type: "guardrail_result", Value: val}
	case *GuardrailResult:
		return SpanInputOutput{Type: "guardrail_result", Value: val}
	case error:
		return SpanInputOutput{Type: "text", Value: val.Error()}
	case []string:
		items := make([]SpanInputOutput, 0, len(val))
		for _, item := range val {
			items = append(items, classifyValue(item))
		}
		return SpanInputOutput{Type: "list", Value: items}
	case []any:
		items := make([]SpanInputOutput, 0, len(val))
		for _, item := range val {
			items = append(items, classifyValue(item))
		}
		return SpanInputOutput{Type: "list", Value: items}
	default:
		return SpanInputOutput{Type: "json", Value: val}
	}
}

// truncateValue walks an already-JSON-shaped value and truncates every
// string longer than maxLen. Values that are not plain JSON trees are
// normalized through a marshal/unmarshal round trip first; values that
// cannot be marshalled at all degrade to a truncated %v rendering under
// the raw type.
func truncateValue(v any, maxLen int) any {
	if maxLen <= 0 {
		return v
	}
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return truncateString(val, maxLen)
	case bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = truncateValue(item, maxLen)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, truncateValue(item, maxLen))
		}
		return out
	default:
		tree, err := toJSONTree(val)
		if err != nil {
			return truncateString(fmt.Sprintf("%v", val), maxLen)
		}
		// A round-tripped tree is built from the cases above, so this
		// recursion terminates.
		return truncateValue(tree, maxLen)
	}
}

// truncateString caps s at maxLen characters, never splitting a rune.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	count := 0
	for i := range s {
		if count == maxLen {
			return s[:i]
		}
		count++
	}
	return s
}

// toJSONTree converts an arbitrary value into the generic
// map/slice/scalar shape json.Unmarshal produces.
func toJSONTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// serializeEnvelope applies truncation and JSON-encodes an envelope.
// truncateValue reduces the value to strings, scalars, maps, and slices
// of those, so the marshal cannot fail on value content; the raw
// constant is the last resort and never propagates an error.
func serializeEnvelope(env SpanInputOutput, maxLen int) string {
	env.Value = truncateValue(env.Value, maxLen)
	raw, err := json.Marshal(env)
	if err != nil {
		return `{"type":"raw","value":"unserializable"}`
	}
	return string(raw)
}

// serializeJSON encodes any value with the same string fallback as
// serializeEnvelope. Used for params, metrics, metadata, contexts, and
// timestamps attributes.
func serializeJSON(v any) string {
	raw, err := json.Marshal(v)
	if err == nil {
		return string(raw)
	}
	raw, err = json.Marshal(fmt.Sprintf("%v", v))
	if err != nil {
		return `"unserializable"`
	}
	return string(raw)
}

// mergeMap shallow-merges src into dst: new keys are added, existing
// keys overwritten, keys absent from src preserved. dst may be nil.
func mergeMap(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
