package secrets

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValidationError lists settings that are required but unset, and settings
// whose values were rejected.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid environment variables: %s", strings.Join(e.Invalid, "; ")))
	}
	return strings.Join(parts, "; ")
}

// Requirement describes one setting to validate.
type Requirement struct {
	Name  string
	Value string
	// Required makes an empty Value a failure.
	Required bool
	// Check, when set, validates a non-empty Value.
	Check func(string) error
}

// Validate checks every requirement and reports all failures at once,
// sorted by name.
func Validate(reqs ...Requirement) error {
	var verr ValidationError
	for _, r := range reqs {
		v := strings.TrimSpace(r.Value)
		if v == "" {
			if r.Required {
				verr.Missing = append(verr.Missing, r.Name)
			}
			continue
		}
		if r.Check != nil {
			if err := r.Check(v); err != nil {
				verr.Invalid = append(verr.Invalid, r.Name+": "+err.Error())
			}
		}
	}
	if len(verr.Missing) == 0 && len(verr.Invalid) == 0 {
		return nil
	}
	sort.Strings(verr.Missing)
	sort.Strings(verr.Invalid)
	return &verr
}

// HTTPURL accepts absolute http and https URLs.
func HTTPURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("not a URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}

// OneOf returns a check accepting only the listed values.
func OneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
