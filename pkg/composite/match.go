package composite

import (
	"fmt"
	"path"
	"regexp"
)

// NewTypeMatcher compiles the type tag filter of opts. Patterns must match
// the whole tag; an empty pattern matches everything.
func NewTypeMatcher(opts ListOptions) (func(typeTag string) bool, error) {
	if opts.Pattern == "" {
		return func(string) bool { return true }, nil
	}
	if opts.Regex {
		re, err := regexp.Compile("^(?:" + opts.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid list pattern %q: %w", opts.Pattern, err)
		}
		return re.MatchString, nil
	}
	if _, err := path.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid list pattern %q: %w", opts.Pattern, err)
	}
	pattern := opts.Pattern
	return func(typeTag string) bool {
		ok, _ := path.Match(pattern, typeTag)
		return ok
	}, nil
}
