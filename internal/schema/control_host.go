// Package schema defines the wire messages exchanged with the Control Host and
// the Item Service.
package schema

import (
	"bytes"
	"encoding/json"
)

// Control Host message types. The link carries one JSON object per line.
const (
	HostPair              = "pair"
	HostListenForSettings = "listenForSettings"
	HostLog               = "log"
	HostChoiceUpdate      = "choiceUpdate"
	HostCreateState       = "createState"
	HostRemoveState       = "removeState"

	HostInfo            = "info"
	HostSettingsUpdated = "settingsUpdated"
	HostAction          = "action"
	HostClosePlugin     = "closePlugin"
)

// PairMessage announces the bridge to the Control Host.
type PairMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func NewPair(pluginID string) PairMessage {
	return PairMessage{Type: HostPair, ID: pluginID}
}

// ListenForSettingsMessage subscribes to changes of one settings section.
type ListenForSettingsMessage struct {
	Type    string `json:"type"`
	Section string `json:"section"`
}

func NewListenForSettings(section string) ListenForSettingsMessage {
	return ListenForSettingsMessage{Type: HostListenForSettings, Section: section}
}

// LogMessage forwards a log line to the Control Host.
type LogMessage struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func NewLog(level, message string) LogMessage {
	return LogMessage{Type: HostLog, Level: level, Message: message}
}

// ChoiceUpdateMessage replaces the values of a choice list.
type ChoiceUpdateMessage struct {
	Type  string   `json:"type"`
	ID    string   `json:"id"`
	Value []string `json:"value"`
}

func NewChoiceUpdate(id string, values []string) ChoiceUpdateMessage {
	if values == nil {
		values = []string{}
	}
	return ChoiceUpdateMessage{Type: HostChoiceUpdate, ID: id, Value: values}
}

// CreateStateMessage creates or updates a named state.
type CreateStateMessage struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	Desc         string `json:"desc"`
	DefaultValue string `json:"defaultValue"`
	ForceUpdate  bool   `json:"forceUpdate"`
	ParentGroup  string `json:"parentGroup"`
}

func NewCreateState(id, desc, defaultValue, group string) CreateStateMessage {
	return CreateStateMessage{
		Type:         HostCreateState,
		ID:           id,
		Desc:         desc,
		DefaultValue: defaultValue,
		ParentGroup:  group,
	}
}

// RemoveStateMessage retracts a named state.
type RemoveStateMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func NewRemoveState(id string) RemoveStateMessage {
	return RemoveStateMessage{Type: HostRemoveState, ID: id}
}

// ActionArg is one {id, value} argument of an action request.
type ActionArg struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts any scalar value. Numbers and booleans keep their
// JSON text; null and nested values decode to "".
func (a *ActionArg) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    string          `json:"id"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.ID = raw.ID
	a.Value = scalarText(raw.Value)
	return nil
}

func scalarText(v json.RawMessage) string {
	text := bytes.TrimSpace(v)
	if len(text) == 0 {
		return ""
	}
	switch text[0] {
	case '"':
		var s string
		if err := json.Unmarshal(text, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(text)
	}
}

// ActionArgs is the argument list of an action request.
type ActionArgs []ActionArg

// UnmarshalJSON decodes an argument array. Any other shape, such as the
// object some host messages carry under "data", decodes to no arguments.
func (a *ActionArgs) UnmarshalJSON(b []byte) error {
	text := bytes.TrimSpace(b)
	if len(text) == 0 || text[0] != '[' {
		*a = nil
		return nil
	}
	var args []ActionArg
	if err := json.Unmarshal(text, &args); err != nil {
		return err
	}
	*a = args
	return nil
}

// Value returns the value of the first argument with the given id, or "".
func (a ActionArgs) Value(id string) string {
	for _, arg := range a {
		if arg.ID == id {
			return arg.Value
		}
	}
	return ""
}

// HostInbound is the union of messages the Control Host sends.
type HostInbound struct {
	Type     string           `json:"type"`
	PluginID string           `json:"pluginId,omitempty"`
	ActionID string           `json:"actionId,omitempty"`
	Data     ActionArgs       `json:"data,omitempty"`
	Settings []map[string]any `json:"settings,omitempty"`
}
