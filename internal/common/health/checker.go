package health

// Checker is implemented by anything whose health can be reported on the /health endpoint.
// Check returns nil when healthy.
type Checker interface {
	Check() error
}
