// This file contains the placeholder-based layout compiler used for free-text
// altitude expressions.

package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Format is a named layout. Pattern is a regular expression that may embed
// {NAME} placeholders resolved against the base patterns.
type Format struct {
	Name    string
	Pattern string
}

// Compiler matches text against an ordered list of layouts.
type Compiler struct {
	names []string
	res   []*regexp.Regexp
}

var placeholder = regexp.MustCompile(`\{([A-Z][A-Z_]*)\}`)

// Compile resolves the placeholders of every format and compiles it. Entries
// in local shadow BasePatterns. An unknown placeholder is an error.
func Compile(formats []Format, local map[string]string) (*Compiler, error) {
	lookup := func(name string) (string, bool) {
		if v, ok := local[name]; ok {
			return v, true
		}
		v, ok := BasePatterns[name]
		return v, ok
	}

	c := &Compiler{
		names: make([]string, 0, len(formats)),
		res:   make([]*regexp.Regexp, 0, len(formats)),
	}
	for _, f := range formats {
		var missing []string
		expr := placeholder.ReplaceAllStringFunc(f.Pattern, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := lookup(name)
			if !ok {
				missing = append(missing, name)
				return m
			}
			return "(?:" + v + ")"
		})
		if len(missing) > 0 {
			return nil, fmt.Errorf("format %s: unknown placeholder %s", f.Name, strings.Join(missing, ", "))
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", f.Name, err)
		}
		c.names = append(c.names, f.Name)
		c.res = append(c.res, re)
	}
	return c, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(formats []Format, local map[string]string) *Compiler {
	c, err := Compile(formats, local)
	if err != nil {
		panic(err)
	}
	return c
}

// Match is the first layout that accepted the text.
type Match struct {
	Format string
	groups map[string]string
}

// Get returns the named group, or def when it is absent or empty.
func (m Match) Get(name, def string) string {
	if v := m.groups[name]; v != "" {
		return v
	}
	return def
}

// Match tries each layout in order against the trimmed, upper-cased text.
func (c *Compiler) Match(text string) (Match, bool) {
	s := strings.ToUpper(strings.TrimSpace(text))
	for i, re := range c.res {
		sub := re.FindStringSubmatch(s)
		if sub == nil {
			continue
		}
		m := Match{Format: c.names[i], groups: make(map[string]string)}
		for j, name := range re.SubexpNames() {
			if name != "" {
				m.groups[name] = sub[j]
			}
		}
		return m, true
	}
	return Match{}, false
}
