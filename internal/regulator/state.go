package regulator

import (
	"fmt"
	"strings"
)

// State is the logical on/off state of a regulator.
type State bool

const (
	Disabled State = false
	Enabled  State = true
)

// Canonical attribute tokens. The trailing newline is part of the read form.
const (
	tokenEnabled  = "enabled"
	tokenDisabled = "disabled"
)

func (s State) String() string {
	if s == Enabled {
		return tokenEnabled
	}
	return tokenDisabled
}

// ParseState maps an attribute write to a State.
//
// Exactly two forms are accepted per state: "enabled"/"1" and "disabled"/"0".
// A single trailing newline is tolerated (echo "1" > state); nothing else is
// trimmed and matching is case-sensitive.
func ParseState(s string) (State, error) {
	switch {
	case attrEqual(s, tokenEnabled), attrEqual(s, "1"):
		return Enabled, nil
	case attrEqual(s, tokenDisabled), attrEqual(s, "0"):
		return Disabled, nil
	}
	return Disabled, fmt.Errorf("%w: %q", ErrInvalidInput, s)
}

// attrEqual compares an attribute buffer with a token, ignoring one
// trailing newline on the buffer.
func attrEqual(buf, token string) bool {
	return strings.TrimSuffix(buf, "\n") == token
}
