package validate

import (
	"fmt"
	"os"
	"regexp"
)

// ForbidChecker fails files whose content matches a pattern.
type ForbidChecker struct {
	re      *regexp.Regexp
	message string
}

// NewForbidChecker compiles pattern in multi-line mode.
func NewForbidChecker(pattern, message string) (*ForbidChecker, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &ForbidChecker{re: re, message: message}, nil
}

func (c *ForbidChecker) Check(paths []string) []Violation {
	var out []Violation
	for _, p := range paths {
		if !isFile(p) {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil || len(data) == 0 {
			continue
		}
		if c.re.Match(data) {
			out = append(out, Violation{Path: p, Message: c.message})
		}
	}
	return out
}
