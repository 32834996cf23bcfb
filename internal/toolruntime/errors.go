package toolruntime

import "fmt"

func errArgParseFailed(raw string) error {
	n := len(raw)
	if n > 200 {
		n = 200
	}
	return fmt.Errorf("could not parse tool call arguments, substituting empty object (first %d chars): %s", n, raw[:n])
}
