package ratelimit

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

type countingLogger struct{ n int }

func (c *countingLogger) Log(keyvals ...interface{}) error {
	c.n++
	return nil
}

func TestLogger_DropsAboveRate(t *testing.T) {
	inner := &countingLogger{}
	l := New(1, inner)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Log("i", i))
	}

	require.Equal(t, 1, inner.n)
}

func TestLogger_WrapsNopLogger(t *testing.T) {
	l := New(100, log.NewNopLogger())
	require.NoError(t, l.Log("msg", "hello"))
}
