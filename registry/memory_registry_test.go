package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	watch := reg.Watch("kv")

	require.NoError(t, reg.Register("kv", ServiceInstance{Network: "unix", Addr: "/run/a.sock", Weight: 1}, 10))
	require.NoError(t, reg.Register("kv", ServiceInstance{Network: "unix", Addr: "/run/b.sock", Weight: 1}, 10))
	// Re-registering an address replaces it.
	require.NoError(t, reg.Register("kv", ServiceInstance{Network: "unix", Addr: "/run/a.sock", Weight: 3}, 10))

	insts, err := reg.Discover("kv")
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, 3, insts[0].Weight)

	select {
	case latest := <-watch:
		assert.Len(t, latest, 2)
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}

	require.NoError(t, reg.Deregister("kv", "/run/a.sock"))
	insts, err = reg.Discover("kv")
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "/run/b.sock", insts[0].Addr)

	latest := <-watch
	assert.Len(t, latest, 1)

	empty, err := reg.Discover("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
