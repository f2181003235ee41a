package nbio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsLookup(t *testing.T) {
	assert.False(t, needsLookup(""))
	assert.False(t, needsLookup("127.0.0.1"))
	assert.False(t, needsLookup("::1"))
	assert.True(t, needsLookup("localhost"))
}

func TestResolverLookupLiteralAddressSkipsDNS(t *testing.T) {
	loop := newTestLoop(t)
	defer runLoop(loop)()

	done := make(chan struct{})
	var gotAddr string
	var gotErr error
	loop.Resolver.Lookup("127.0.0.1", func(addr string, err error) {
		gotAddr, gotErr = addr, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lookup callback")
	}
	require.NoError(t, gotErr)
	assert.Equal(t, "127.0.0.1", gotAddr)
}

func TestResolverLookupIsAlwaysAsync(t *testing.T) {
	// The loop is not run here: a running loop could drain the next-tick
	// queue before the assertion below, so only a synchronous call from
	// Lookup itself could set called.
	loop := newTestLoop(t)
	defer loop.Close()

	called := false
	loop.Resolver.Lookup("127.0.0.1", func(addr string, err error) { called = true })
	assert.False(t, called, "Lookup must defer even a literal-address callback to the next tick")
}
