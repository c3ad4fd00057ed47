package pipetree

import (
	"fmt"

	"github.com/spf13/cast"
)

// Describe renders a worker's raw status for logging. Status is ordinarily
// zero or a Code, but a worker is free to return any value of its own
// convention in the status slot (it's just an int, per the operator
// signature), so unknown values are coerced defensively with cast rather
// than assumed to fit the reserved taxonomy.
func Describe(status int) string {
	if c := Code(status); knownCode(c) {
		return c.Error()
	}
	if status == 0 {
		return "ok"
	}
	s, err := cast.ToStringE(status)
	if err != nil {
		return fmt.Sprintf("pipetree: status %d", status)
	}
	return "status " + s
}

// describeOperand renders an arbitrary worker operand for diagnostic
// logging without risking a panic on an unexpected dynamic type.
func describeOperand(operand any) string {
	s, err := cast.ToStringE(operand)
	if err != nil {
		return fmt.Sprintf("%T", operand)
	}
	return s
}
