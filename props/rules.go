package props

import (
	"github.com/drpcorg/scenesync/classes"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Rules is a list of "Class.Field" patterns. Either part may use glob
// wildcards. A rule for a class applies to its subclasses too.
type Rules struct {
	patterns []string
	matchers []glob.Glob
}

func compileRules(patterns []string) (*Rules, error) {
	r := &Rules{}
	for _, p := range patterns {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Rules) Add(pattern string) error {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return errors.Wrapf(err, "bad field pattern %q", pattern)
	}
	r.patterns = append(r.patterns, pattern)
	r.matchers = append(r.matchers, g)
	return nil
}

func (r *Rules) Patterns() []string { return r.patterns }

// Match reports whether a rule names the field for the class or one of its
// ancestors.
func (r *Rules) Match(c *classes.Class, f *classes.Field) bool {
	if r == nil || len(r.matchers) == 0 {
		return false
	}
	for _, name := range c.Lineage() {
		key := name + "." + f.Name
		for _, g := range r.matchers {
			if g.Match(key) {
				return true
			}
		}
	}
	return false
}

// MatchClass reports whether a rule names the class or an ancestor.
func (r *Rules) MatchClass(c *classes.Class) bool {
	if r == nil {
		return false
	}
	for _, name := range c.Lineage() {
		for _, g := range r.matchers {
			if g.Match(name) {
				return true
			}
		}
	}
	return false
}
