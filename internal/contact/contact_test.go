package contact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-manager/internal/shared"
)

func named(names ...string) []Contact {
	out := make([]Contact, len(names))
	for i, n := range names {
		out[i] = Contact{ID: ID(fmt.Sprint(i + 1)), Name: n}
	}
	return out
}

func TestFilterByName(t *testing.T) {
	contacts := named("Ann", "anna", "Bob")

	got := FilterByName(contacts, "an")
	assert.Equal(t, []string{"Ann", "anna"}, Names(got))

	assert.Equal(t, contacts, FilterByName(contacts, ""))
	assert.Empty(t, FilterByName(contacts, "z"))
	assert.Equal(t, []string{"Bob"}, Names(FilterByName(contacts, "BO")))
}

func TestFilterByName_OnlyPrefixMatches(t *testing.T) {
	contacts := named("Joanna", "Anabel", "ann-marie", "Dan", "", "ANN")
	prefixes := []string{"a", "An", "ann", "J", "d", "x", "n"}

	for _, p := range prefixes {
		got := FilterByName(contacts, p)
		want := 0
		for _, c := range contacts {
			if strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(p)) {
				want++
			}
		}
		require.Len(t, got, want, "prefix %q", p)
		for _, c := range got {
			assert.True(t, strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(p)), "prefix %q name %q", p, c.Name)
		}
	}
}

func TestPaginate(t *testing.T) {
	contacts := named("a", "b", "c", "d", "e")

	assert.Equal(t, []string{"a", "b"}, Names(Paginate(contacts, 2, 1)))
	assert.Equal(t, []string{"c", "d"}, Names(Paginate(contacts, 2, 2)))
	assert.Equal(t, []string{"e"}, Names(Paginate(contacts, 2, 3)))
	assert.Empty(t, Paginate(contacts, 2, 4))
	assert.Empty(t, Paginate(contacts, 0, 1))
	assert.Empty(t, Paginate(contacts, 2, 0))
	assert.Empty(t, Paginate(nil, 3, 1))
}

func TestPaginate_Reconstructs(t *testing.T) {
	for total := 0; total <= 12; total++ {
		contacts := named(strings.Split(strings.Repeat("x,", total), ",")[:total]...)
		for size := 1; size <= 5; size++ {
			var rebuilt []Contact
			pages := PageCount(total, size)
			for page := 1; page <= pages; page++ {
				p := Paginate(contacts, size, page)
				require.LessOrEqual(t, len(p), size)
				rebuilt = append(rebuilt, p...)
			}
			if total == 0 {
				assert.Empty(t, rebuilt)
				continue
			}
			assert.Equal(t, contacts, rebuilt, "total=%d size=%d", total, size)
		}
	}
}

func TestPaginate_DoesNotAlias(t *testing.T) {
	contacts := named("a", "b", "c")
	page := Paginate(contacts, 2, 1)
	page[0].Name = "changed"
	assert.Equal(t, "a", contacts[0].Name)
}

func TestID_UnmarshalJSON(t *testing.T) {
	var got []Contact
	err := json.Unmarshal([]byte(`[{"id":7,"name":"Ann"},{"id":"b-2","name":"Bob"},{"id":null,"name":"Cy"}]`), &got)
	require.NoError(t, err)
	assert.Equal(t, ID("7"), got[0].ID)
	assert.Equal(t, ID("b-2"), got[1].ID)
	assert.Equal(t, ID(""), got[2].ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":{},"name":"x"}`), &Contact{}))
}

func TestContact_JSONKeepsUnknownFields(t *testing.T) {
	const in = `{"id":"1","name":"Ann","phone":"1","address":"Main St","favorite":true,"tags":["a","b"]}`
	var c Contact
	require.NoError(t, json.Unmarshal([]byte(in), &c))
	assert.Equal(t, "Ann", c.Name)
	assert.Len(t, c.Extra, 3)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestContact_JSONKeepsNumericID(t *testing.T) {
	const in = `{"id":42,"name":"Ann","phone":"1"}`
	var c Contact
	require.NoError(t, json.Unmarshal([]byte(in), &c))
	assert.Equal(t, ID("42"), c.ID)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestContact_KnownFieldsOnly(t *testing.T) {
	var c Contact
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","name":"Ann","phone":"1"}`), &c))
	assert.Nil(t, c.Extra)
	assert.Equal(t, Contact{ID: "1", Name: "Ann", Phone: "1"}, c)

	out, err := json.Marshal(Contact{Name: "Bob", Phone: "2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bob","phone":"2"}`, string(out))
}

func TestClone_CopiesExtra(t *testing.T) {
	in := []Contact{{Name: "Ann", Extra: map[string]json.RawMessage{"a": json.RawMessage(`1`)}}}
	out := Clone(in)
	out[0].Extra["a"] = json.RawMessage(`2`)
	assert.Equal(t, json.RawMessage(`1`), in[0].Extra["a"])
	assert.Nil(t, Clone(nil))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Contact{Name: "Ann", Phone: "+100"}))

	err := Validate(Contact{Email: "nope"})
	require.Error(t, err)
	assert.True(t, shared.IsViolation(err))

	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := map[string]string{}
	for _, v := range ve.Violations {
		fields[v.Field] = v.Message
	}
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "is required", fields["phone"])
	assert.Equal(t, "must be a valid email address", fields["email"])
}

func TestValidateUser(t *testing.T) {
	assert.NoError(t, ValidateUser(NewUser{Username: "ann"}))
	err := ValidateUser(NewUser{})
	assert.True(t, shared.IsViolation(err))
	assert.Contains(t, err.Error(), "username: is required")
}

func TestWriteVCards(t *testing.T) {
	var buf bytes.Buffer
	err := WriteVCards(&buf, []Contact{
		{ID: "1", Name: "Ann", Phone: "+100", Email: "ann@example.com"},
		{Name: "Bob", Phone: "+200"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VCARD"))
	assert.Contains(t, out, "VERSION:4.0")
	assert.Contains(t, out, "FN:Ann")
	assert.Contains(t, out, "TEL:+100")
	assert.Contains(t, out, "EMAIL:ann@example.com")
	assert.Contains(t, out, "UID:1")
	assert.Contains(t, out, "FN:Bob")
}
