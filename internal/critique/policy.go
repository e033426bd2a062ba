package critique

import (
	"fmt"
	"strings"
)

// Policy decides whether comparison groups are sent for critique.
type Policy string

const (
	PolicyAuto  Policy = "auto"
	PolicyAsk   Policy = "ask"
	PolicyNever Policy = "never"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyAuto:
		return PolicyAuto, nil
	case PolicyAsk, "":
		return PolicyAsk, nil
	case PolicyNever:
		return PolicyNever, nil
	default:
		return "", fmt.Errorf("invalid critique policy %q: must be auto, ask, or never", raw)
	}
}
