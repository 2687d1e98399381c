package schema

import (
	"encoding/json"
	"fmt"
)

// ChannelInfo is the serializable description of a Channel.
type ChannelInfo struct {
	Key     string `json:"key" yaml:"key"`
	Reducer string `json:"reducer" yaml:"reducer"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Describe lists the channels in declaration order.
func (s *Schema) Describe() []ChannelInfo {
	out := make([]ChannelInfo, len(s.channels))
	for i, c := range s.channels {
		info := ChannelInfo{Key: c.Key, Reducer: c.Reducer.Name()}
		if c.Type != nil {
			info.Type = c.Type.Name()
		}
		if c.hasDefault {
			info.Default = c.Default
		}
		out[i] = info
	}
	return out
}

// MarshalJSON serializes the schema as an ordered list of channel descriptions.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.Describe())
}

// FromInfo rebuilds a schema from descriptions. Custom reducers cannot be
// restored by name and are rejected.
func FromInfo(infos []ChannelInfo) (*Schema, error) {
	channels := make([]Channel, 0, len(infos))
	for _, info := range infos {
		var r Reducer
		switch Kind(info.Reducer) {
		case KindOverwrite, "":
			r = Overwrite()
		case KindAppend:
			r = Append()
		default:
			return nil, fmt.Errorf("key %s: reducer %q cannot be restored", info.Key, info.Reducer)
		}
		var opts []ChannelOption
		if info.Type != "" {
			t, err := ParseType(info.Type)
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", info.Key, err)
			}
			opts = append(opts, WithType(t))
		}
		if info.Default != nil {
			opts = append(opts, WithDefault(info.Default))
		}
		channels = append(channels, Field(info.Key, r, opts...))
	}
	return New(channels...)
}

// UnmarshalJSON deserializes a schema produced by MarshalJSON.
func (s *Schema) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("schema: UnmarshalJSON on nil pointer")
	}
	var infos []ChannelInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return err
	}
	parsed, err := FromInfo(infos)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
