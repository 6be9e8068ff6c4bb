package amqp

import (
	"context"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestListenerAcceptCanceledContextLeavesNoGoroutineLeak(t *testing.T) {
	defer leaktest.Check(t)()

	l, err := Listen("127.0.0.1", 0, ListenOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := l.Accept(ctx)
	require.Nil(t, c)
	require.ErrorIs(t, err, context.Canceled)

	// Accept's helper goroutine is still blocked in l.ln.Accept(); closing
	// the listener unblocks it so it can exit before the leak check runs.
	require.NoError(t, l.Close())
}

func TestListenDefaultsContainerID(t *testing.T) {
	l, err := Listen("127.0.0.1", 0, ListenOptions{})
	require.NoError(t, err)
	defer l.Close()
	require.NotEmpty(t, l.containerID)
}
