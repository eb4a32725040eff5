package paystack

import "fmt"

// GatewayError is returned when Paystack could not be reached or refused a call
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
	temporary  bool
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("paystack %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("paystack %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("paystack %s: %s", e.Op, e.Message)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Temporary reports whether the caller may retry later
func (e *GatewayError) Temporary() bool { return e.temporary }
