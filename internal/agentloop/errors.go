package agentloop

import (
	"errors"
	"fmt"

	"github.com/aprbench/aprloop/internal/budget"
)

// ErrTimeout is returned internally by phase helpers when the global
// wall-clock ceiling has been exceeded; Run converts it into a Timeout
// Result rather than surfacing it to a caller.
var ErrTimeout = errors.New("timeout")

func errTimeout() error {
	return fmt.Errorf("%w: exceeded %ds", ErrTimeout, int(budget.GlobalTimeout.Seconds()))
}
