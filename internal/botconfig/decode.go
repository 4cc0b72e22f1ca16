package botconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Trigger maps a free-text fragment to a plain response.
type Trigger struct {
	Match    string
	Response string
}

// TriggerList keeps free-text triggers in configuration order. In JSON it is
// an object whose key order is significant.
type TriggerList []Trigger

func (t *TriggerList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("triggers must be a JSON object, got %v", tok)
	}

	var out TriggerList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected trigger key %v", keyTok)
		}
		var response string
		if err := dec.Decode(&response); err != nil {
			return fmt.Errorf("trigger %q: %w", key, err)
		}
		out = append(out, Trigger{Match: key, Response: response})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*t = out
	return nil
}

func (t TriggerList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tr := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tr.Match)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(tr.Response)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ButtonLayout is an ordered list of keyboard rows. A flat list of buttons
// is accepted as well, in which case every button gets its own row.
type ButtonLayout [][]Button

func (l *ButtonLayout) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	var rows [][]Button
	if err := json.Unmarshal(trimmed, &rows); err == nil {
		*l = rows
		return nil
	}

	var flat []Button
	if err := json.Unmarshal(trimmed, &flat); err != nil {
		return fmt.Errorf("buttons must be a list of rows or a list of buttons: %w", err)
	}
	out := make(ButtonLayout, 0, len(flat))
	for _, b := range flat {
		out = append(out, []Button{b})
	}
	*l = out
	return nil
}

// Parse decodes a bot configuration from JSON.
func Parse(data []byte) (*BotConfiguration, error) {
	var cfg BotConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bot configuration: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads and decodes a bot configuration file.
func LoadFile(path string) (*BotConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot configuration %s: %w", path, err)
	}
	return Parse(data)
}
