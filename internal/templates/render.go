package templates

import (
	"regexp"
	"strings"

	"github.com/Napageneral/sdr/internal/contacts"
)

var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)

// ExtractVariables returns the placeholder names used in content, unique and
// in order of first appearance.
func ExtractVariables(content string) []string {
	matches := placeholderRE.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

type field struct {
	names []string
	value func(c contacts.Contact) string
	def   string
}

// Fallbacks match what recipients have always seen when a field is blank.
var fields = []field{
	{names: []string{"nome", "name"}, value: func(c contacts.Contact) string { return c.Name }, def: "Cliente"},
	{names: []string{"empresa", "company"}, value: func(c contacts.Contact) string { return c.Name }, def: "sua empresa"},
	{names: []string{"endereco", "address"}, value: func(c contacts.Contact) string { return c.Address }},
	{names: []string{"categoria", "category"}, value: func(c contacts.Contact) string { return c.Category }, def: "negócio"},
	{names: []string{"telefone", "phone"}, value: func(c contacts.Contact) string { return c.Phone }},
	{names: []string{"email"}, value: func(c contacts.Contact) string { return c.Email }},
	{names: []string{"website"}, value: func(c contacts.Contact) string { return c.Website }},
}

// Render personalizes content for one contact. Unknown placeholders are
// left as written.
func Render(content string, c contacts.Contact) string {
	pairs := make([]string, 0, len(fields)*4)
	for _, f := range fields {
		v := f.value(c)
		if v == "" {
			v = f.def
		}
		for _, name := range f.names {
			pairs = append(pairs, "{"+name+"}", v)
		}
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// KnownVariables lists every placeholder Render substitutes.
func KnownVariables() []string {
	var out []string
	for _, f := range fields {
		out = append(out, f.names...)
	}
	return out
}
