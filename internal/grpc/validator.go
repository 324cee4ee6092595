package server

import (
	"fmt"
	"regexp"
	"strings"
)

var areaPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)

type RequestValidator struct {
	areas map[string]bool
}

func NewRequestValidator(areas []string) *RequestValidator {
	v := &RequestValidator{areas: make(map[string]bool, len(areas))}
	for _, a := range areas {
		v.areas[strings.ToUpper(a)] = true
	}
	return v
}

// Validate checks that area is well formed and configured.
func (v *RequestValidator) Validate(area string) error {
	if area == "" {
		return fmt.Errorf("missing area")
	}
	if !areaPattern.MatchString(area) {
		return fmt.Errorf("invalid area: %q", area)
	}
	if !v.areas[strings.ToUpper(area)] {
		return fmt.Errorf("unknown area: %s", area)
	}
	return nil
}
