package ami

import (
	"bufio"
	"strings"
)

// Field is one "Key: value" line of a response.
type Field struct {
	Key   string
	Value string
}

// Response is the line-scanned form of a raw response. The raw text may hold
// several blank-line separated blocks (a reply followed by list events); all
// of them are scanned in order.
type Response struct {
	Raw    string
	Fields []Field
}

// ParseResponse scans raw response text line by line. Lines without a colon
// are kept as free text under an empty key.
func ParseResponse(raw string) Response {
	resp := Response{Raw: raw}
	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			resp.Fields = append(resp.Fields, Field{Value: strings.TrimSpace(line)})
			continue
		}
		resp.Fields = append(resp.Fields, Field{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return resp
}

// Get returns the first value for key.
func (r Response) Get(key string) string {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for key, in order.
func (r Response) Values(key string) []string {
	var out []string
	for _, f := range r.Fields {
		if strings.EqualFold(f.Key, key) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Success reports whether the first Response header indicates success.
func (r Response) Success() bool {
	switch strings.ToLower(r.Get("Response")) {
	case "success", "follows", "goodbye":
		return true
	}
	return false
}

// Message returns the Message header, useful for error reporting.
func (r Response) Message() string {
	return r.Get("Message")
}

// ActionID returns the correlation id echoed by the switch.
func (r Response) ActionID() string {
	return r.Get("ActionID")
}

// Channels returns the distinct Channel values in order of appearance.
func (r Response) Channels() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range r.Values("Channel") {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
