package oracle

import "context"

// Client is the transport to the external reasoning service. Complete
// sends one system+user exchange and returns the raw response text; the
// adapter never trusts its shape.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ClientFunc adapts a function to the Client interface (tests, stubs).
type ClientFunc func(ctx context.Context, system, user string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}
