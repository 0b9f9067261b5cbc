package ami

import (
	"bytes"
	"strings"
)

// lineEnd terminates every line on the wire; a bare lineEnd ends a message.
const lineEnd = "\r\n"

var terminator = []byte(lineEnd + lineEnd)

// Param is a single "Key: value" header of an action.
type Param struct {
	Key   string
	Value string
}

// Action is a manager command. Parameters keep their insertion order since
// some switch versions are sensitive to it (Action must come first).
type Action struct {
	Name   string
	Params []Param
}

// NewAction creates an action with the given name and key/value pairs.
// A trailing key without a value is ignored.
func NewAction(name string, kv ...string) Action {
	a := Action{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Params = append(a.Params, Param{Key: kv[i], Value: kv[i+1]})
	}
	return a
}

// With returns a copy of the action with an extra parameter appended.
func (a Action) With(key, value string) Action {
	params := make([]Param, len(a.Params), len(a.Params)+1)
	copy(params, a.Params)
	a.Params = append(params, Param{Key: key, Value: value})
	return a
}

// Get returns the first value for key, compared case-insensitively.
func (a Action) Get(key string) string {
	for _, p := range a.Params {
		if strings.EqualFold(p.Key, key) {
			return p.Value
		}
	}
	return ""
}

// Encode writes the action as a header line, one line per parameter and a
// blank line terminator.
func (a Action) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString("Action: ")
	buf.WriteString(a.Name)
	buf.WriteString(lineEnd)
	for _, p := range a.Params {
		// CR/LF inside a value would inject extra headers.
		value := strings.NewReplacer("\r", " ", "\n", " ").Replace(p.Value)
		buf.WriteString(p.Key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString(lineEnd)
	}
	buf.WriteString(lineEnd)
	return buf.Bytes()
}
