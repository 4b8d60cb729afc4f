package candle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/quarry/internal/core"
	"github.com/stretchr/testify/assert"
)

// flakyStore fails EnsureSchema until failures is exhausted.
type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (f *flakyStore) EnsureSchema(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestEnsureSchemaWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{"ready immediately", 0, 3, false, 1},
		{"ready on last attempt", 2, 3, false, 3},
		{"never ready", 5, 3, true, 3},
		{"zero attempts means one", 1, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &flakyStore{MemoryStore: NewMemoryStore(), failures: tt.failures}
			err := EnsureSchemaWithRetry(context.Background(), s, tt.attempts, time.Millisecond, nil)
			if tt.wantErr {
				assert.True(t, errors.Is(err, core.ErrSchemaNotReady))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, s.calls)
		})
	}
}

func TestEnsureSchemaWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}
	err := EnsureSchemaWithRetry(ctx, s, 50, time.Hour, nil)
	assert.Error(t, err)
	assert.LessOrEqual(t, s.calls, 1)
}
