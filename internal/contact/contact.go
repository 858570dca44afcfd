// Package contact defines the contact record and the pure list helpers used by the client.
package contact

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// ID is the server-assigned identity of a contact. The resource server may send
// it as a JSON string or number; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts strings and numbers.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Contact is a record owned by the resource server. Only Name is interpreted locally.
type Contact struct {
	ID    ID     `json:"id,omitempty"`
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"required,max=32"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	// Extra keeps every other field as received, so a decoded record encodes
	// back to the same object. A non-string id is kept here too.
	Extra map[string]json.RawMessage `json:"-"`
}

type contactFields Contact

var knownFields = []string{"id", "name", "phone", "email"}

func (c *Contact) UnmarshalJSON(b []byte) error {
	var f contactFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range knownFields {
		if k == "id" {
			if v, ok := all[k]; ok && !isJSONString(v) {
				continue
			}
		}
		delete(all, k)
	}
	if len(all) == 0 {
		all = nil
	}
	*c = Contact(f)
	c.Extra = all
	return nil
}

func (c Contact) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(contactFields(c))
	if err != nil || len(c.Extra) == 0 {
		return b, err
	}
	all := make(map[string]json.RawMessage, len(c.Extra)+len(knownFields))
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		all[k] = v
	}
	return json.Marshal(all)
}

func isJSONString(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '"'
}

// Clone copies contacts so the copies share no Extra maps with the input.
// A nil slice stays nil.
func Clone(contacts []Contact) []Contact {
	if contacts == nil {
		return nil
	}
	out := make([]Contact, len(contacts))
	for i, c := range contacts {
		c.Extra = maps.Clone(c.Extra)
		out[i] = c
	}
	return out
}

// NewUser is the payload of the create-user operation.
type NewUser struct {
	Username string `json:"username" validate:"required,max=64"`
}

// FilterByName returns contacts whose name starts with prefix, ignoring case.
// An empty prefix returns contacts unchanged.
func FilterByName(contacts []Contact, prefix string) []Contact {
	if prefix == "" {
		return contacts
	}
	p := strings.ToLower(prefix)
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if strings.HasPrefix(strings.ToLower(c.Name), p) {
			out = append(out, c)
		}
	}
	return out
}

// Paginate returns the 1-indexed page of size entries. Pages outside the
// sequence, and non-positive sizes or pages, yield an empty slice.
func Paginate(contacts []Contact, size, page int) []Contact {
	if size <= 0 || page < 1 {
		return []Contact{}
	}
	start := size * (page - 1)
	if start >= len(contacts) {
		return []Contact{}
	}
	end := min(start+size, len(contacts))
	return slices.Clone(contacts[start:end])
}

// PageCount returns how many pages of size entries the contacts span.
func PageCount(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Names returns the names of contacts in order.
func Names(contacts []Contact) []string {
	out := make([]string, len(contacts))
	for i, c := range contacts {
		out[i] = c.Name
	}
	return out
}
