package clients

import "fmt"

// RPCError marks a transient chain node failure: unreachable node, timeout,
// or a reverted estimate. Callers may retry these with backoff; validation
// failures are never wrapped in it.
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain rpc %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}
