package ripple

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"unicode/utf8"
)

// ErrTooManyProperties is returned for property maps with more than
// MaxPropertyKeys keys.
var ErrTooManyProperties = errors.New("too many properties")

// prepareEvent bounds the property maps of event and checks that it encodes.
// Strings longer than MaxStringLength runes are cut. The top-level maps are
// changed in place; nested maps and slices are copied before truncation.
func prepareEvent(e *Event) error {
	for _, m := range []map[string]any{e.EventProperties, e.UserProperties, e.Groups, e.GroupProperties} {
		if err := truncateMap(m); err != nil {
			return err
		}
	}
	if _, err := json.Marshal(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func truncateMap(m map[string]any) error {
	if len(m) > MaxPropertyKeys {
		return fmt.Errorf("%w: %d keys, at most %d allowed", ErrTooManyProperties, len(m), MaxPropertyKeys)
	}
	for k, v := range m {
		tv, err := truncateValue(v)
		if err != nil {
			return err
		}
		m[k] = tv
	}
	return nil
}

func truncateValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return truncateString(t), nil
	case map[string]any:
		c := maps.Clone(t)
		return c, truncateMap(c)
	case []any:
		c := slices.Clone(t)
		for i := range c {
			tv, err := truncateValue(c[i])
			if err != nil {
				return nil, err
			}
			c[i] = tv
		}
		return c, nil
	case []string:
		c := slices.Clone(t)
		for i := range c {
			c[i] = truncateString(c[i])
		}
		return c, nil
	default:
		return v, nil
	}
}

func truncateString(s string) string {
	if utf8.RuneCountInString(s) <= MaxStringLength {
		return s
	}
	return string([]rune(s)[:MaxStringLength])
}

// malformedEventString is the form of a rejected event reported in diagnostics.
func malformedEventString(e *Event, err error) string {
	if data, mErr := json.Marshal(e); mErr == nil {
		return string(data)
	}
	return fmt.Sprintf("%s: %v", e.EventType, err)
}
