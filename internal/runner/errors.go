package runner

import "fmt"

// TransportError reports a failure to reach the collaborator or read its
// response: dial errors, timeouts, truncated bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response that arrived but cannot be used: a
// non-2xx status, an undecodable body, or an error/missing payload.
type ProtocolError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: protocol: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: protocol: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
