package gateway

import "fmt"

// TransportError reports a request that did not complete, or a read the
// gateway answered with a failure status.
type TransportError struct {
	Method string
	Path   string
	Status int // zero when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api %s returned status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommitRejected reports a write the gateway answered with a non-success
// status. Nothing was relayed to the bus.
type CommitRejected struct {
	Path   string
	Status int
	Body   string
}

func (e *CommitRejected) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("gateway rejected write to %s: status %d: %s", e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("gateway rejected write to %s: status %d", e.Path, e.Status)
}
