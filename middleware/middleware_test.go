package middleware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ipcrpc/message"
)

type session struct {
	calls int
}

func echoHandler(state *session, call *message.Call) error {
	state.calls++
	call.WriteString("ok")
	return nil
}

func failingHandler(state *session, call *message.Call) error {
	return errors.New("boom")
}

func panickingHandler(state *session, call *message.Call) error {
	panic("handler bug")
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Logging[session](zap.New(core))(echoHandler)

	var st session
	call := message.NewCall(3, 9, nil, nil)
	require.NoError(t, handler(&st, call))
	assert.Equal(t, 1, st.calls)
	assert.Equal(t, "ok", string(call.Reply()))

	entries := logs.FilterMessage("call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 9, fields["function_id"])
	assert.EqualValues(t, 3, fields["call_id"])
}

func TestLoggingFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Logging[session](zap.New(core))(failingHandler)

	err := handler(&session{}, message.NewCall(1, 2, nil, nil))
	require.EqualError(t, err, "boom")
	entries := logs.FilterMessage("call").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected.
	handler := RateLimit[session](1, 2)(echoHandler)
	var st session

	for i := 0; i < 2; i++ {
		if err := handler(&st, message.NewCall(uint32(i), 1, nil, nil)); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	err := handler(&st, message.NewCall(3, 1, nil, nil))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: %v", err)
	}
	assert.Equal(t, 2, st.calls)
}

func TestRecover(t *testing.T) {
	handler := Recover[session]()(panickingHandler)
	err := handler(&session{}, message.NewCall(1, 4, nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function 4 panicked")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware[session] {
		return func(next HandlerFunc[session]) HandlerFunc[session] {
			return func(state *session, call *message.Call) error {
				order = append(order, name+".before")
				err := next(state, call)
				order = append(order, name+".after")
				return err
			}
		}
	}

	handler := Chain(mark("A"), mark("B"), Recover[session]())(echoHandler)
	require.NoError(t, handler(&session{}, message.NewCall(1, 1, nil, nil)))
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}

func TestChainEmpty(t *testing.T) {
	handler := Chain[session]()(echoHandler)
	call := message.NewCall(1, 1, nil, nil)
	require.NoError(t, handler(&session{}, call))
	assert.Equal(t, "ok", string(call.Reply()))
}
