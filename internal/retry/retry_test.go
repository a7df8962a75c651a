package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("connection reset")
	errPermanent = errors.New("syntax error")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fastPolicy(attempts uint64) Policy {
	return Policy{Attempts: attempts, Base: time.Millisecond, Max: 4 * time.Millisecond}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		attempts  uint64
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first try", attempts: 3, wantCalls: 1},
		{name: "recovers after transient failures", failures: []error{errTransient, errTransient}, attempts: 3, wantCalls: 3},
		{name: "exhausts attempts", failures: []error{errTransient, errTransient, errTransient, errTransient}, attempts: 3, wantCalls: 3, wantErr: errTransient},
		{name: "permanent error is not retried", failures: []error{errPermanent}, attempts: 3, wantCalls: 1, wantErr: errPermanent},
		{name: "zero attempts means one try", failures: []error{errTransient}, attempts: 0, wantCalls: 1, wantErr: errTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(tt.attempts), isTransient, func(context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			// The error must come back unwrapped from the retry marker.
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5, Base: time.Hour}, isTransient, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), fastPolicy(3), isTransient, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, uint64(3), DefaultPolicy.Attempts)
	assert.Equal(t, 2*time.Second, DefaultPolicy.Base)
	assert.Equal(t, 8*time.Second, DefaultPolicy.Max)
}
