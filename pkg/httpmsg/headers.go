package httpmsg

import "strings"

// Field is one header-field name/value pair. A name may repeat with a
// different value; Headers is a multiset, not a map.
type Field struct {
	Name  string
	Value string
}

// Headers is an ordered multiset of header fields. Order of insertion
// carries no semantic meaning but is preserved for stable
// serialization.
type Headers struct {
	fields []Field
}

// Add appends a field, preserving any existing field of the same name.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every existing field named name (case-insensitively)
// with a single field carrying value.
func (h *Headers) Set(name, value string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = append(out, Field{Name: name, Value: value})
}

// Get returns the value of the first field named name (case-insensitive
// match), and whether it was found.
func (h *Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value stored under name (case-insensitive).
func (h *Headers) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Remove deletes every field named name (case-insensitive).
func (h *Headers) Remove(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Has reports whether any field named name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// All returns every field in insertion order.
func (h *Headers) All() []Field {
	return h.fields
}

// Equal reports structural equality: same multiset of (name, value)
// pairs, independent of insertion order.
func (h *Headers) Equal(o *Headers) bool {
	if len(h.fields) != len(o.fields) {
		return false
	}
	used := make([]bool, len(o.fields))
	for _, f := range h.fields {
		found := false
		for i, g := range o.fields {
			if used[i] {
				continue
			}
			if strings.EqualFold(f.Name, g.Name) && f.Value == g.Value {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func parseHeaderLine(line string) (name, value string, err error) {
	if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
		return "", "", ErrMalformed
	}
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", ErrMalformed
	}
	name = line[:colon]
	for _, c := range name {
		if c == ' ' || c == '\t' {
			return "", "", ErrMalformed
		}
	}
	if name == "" {
		return "", "", ErrMalformed
	}
	value = strings.Trim(line[colon+1:], " \t")
	return name, value, nil
}

// parseHeaderBlock reads zero or more header-field lines from l,
// terminated by a blank CRLF line, appending each to h.
func parseHeaderBlock(l *LineBuffer, h *Headers) error {
	for {
		line, err := l.TakeCRLFLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return err
		}
		h.Add(name, value)
	}
}
