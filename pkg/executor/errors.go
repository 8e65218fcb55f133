package executor

import "errors"

// ErrUnseededVariable marks a Compile failure where a constraint
// references a variable type inference (pkg/inference) never seeded,
// meaning the caller handed the planner a graph that hasn't completed
// seeding successfully.
var ErrUnseededVariable = errors.New("executor: variable has no seeded types")

// IsUnseededVariableErr returns true if err is or wraps ErrUnseededVariable.
func IsUnseededVariableErr(err error) bool { return errors.Is(err, ErrUnseededVariable) }
