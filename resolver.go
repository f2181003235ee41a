package nbio

import (
	"context"
	"net"
)

// Resolver is the concrete backing for address resolution: `Lookup(name,
// cb)`. It runs actual lookups on a background goroutine — the one place
// in this package where work happens off the loop thread — and hands the
// result back via the loop's next-tick queue so the Stream state it
// drives is only ever touched from the loop thread.
//
// The stdlib's net.Resolver backs this rather than a third-party DNS
// client: nothing in the retrieval pack ships one (see DESIGN.md).
type Resolver struct {
	loop *EventLoop
	res  *net.Resolver
}

// NewResolver creates a Resolver whose callbacks are delivered through loop.
func NewResolver(loop *EventLoop) *Resolver {
	return &Resolver{loop: loop, res: net.DefaultResolver}
}

// needsLookup reports whether name has to be resolved: it is false for an
// empty name or a literal IP address, true otherwise.
func needsLookup(name string) bool {
	if name == "" {
		return false
	}
	return net.ParseIP(name) == nil
}

// Lookup resolves name to a literal address and invokes cb(addr, err) on
// the loop's next tick — never synchronously, so that listeners a caller
// attaches to the Stream right after calling Lookup still observe the
// outcome. If name is empty or already literal, cb fires with name
// unchanged.
func (r *Resolver) Lookup(name string, cb func(addr string, err error)) {
	if !needsLookup(name) {
		r.loop.NextTick(func() { cb(name, nil) })
		return
	}
	go func() {
		addr, err := r.resolve(name)
		r.loop.NextTick(func() { cb(addr, err) })
	}()
}

// resolve tries IPv4 first and falls back to IPv6 when the IPv4 lookup
// fails or returns no address.
func (r *Resolver) resolve(name string) (string, error) {
	ctx := context.Background()
	if ips, err := r.res.LookupIP(ctx, "ip4", name); err == nil && len(ips) > 0 {
		return ips[0].String(), nil
	}
	ips, err := r.res.LookupIP(ctx, "ip6", name)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", &net.DNSError{Err: "no such host", Name: name}
	}
	return ips[0].String(), nil
}
