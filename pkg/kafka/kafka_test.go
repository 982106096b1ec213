package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBuilder_Build(t *testing.T) {
	msg, err := NewMessage().
		WithKey("quotation:q-1").
		WithEventType("lock.released").
		WithSource("locks").
		WithValue(map[string]string{"resource_key": "quotation:q-1"}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "quotation:q-1", msg.Key)
	assert.Equal(t, "lock.released", msg.GetEventType())
	assert.Equal(t, "locks", msg.GetSource())
	assert.NotEmpty(t, msg.GetEventID())
	assert.JSONEq(t, `{"resource_key":"quotation:q-1"}`, string(msg.Value))
}

func TestMessageBuilder_EncodingErrorSurfacesOnBuild(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	assert.Error(t, err)
}

func TestMessage_RetryCount(t *testing.T) {
	msg := Message{}
	assert.Equal(t, 0, msg.GetRetryCount())
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	assert.Equal(t, 12, msg.GetRetryCount())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"tagged transient", NewTransientError("broker busy", errors.New("x")), ErrorTypeTransient},
		{"tagged permanent", fmt.Errorf("wrap: %w", NewPermanentError("bad payload", nil)), ErrorTypePermanent},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"pattern", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"unknown", errors.New("something odd"), ErrorTypePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := NewTransientError("timeout", nil)
	assert.True(t, ShouldRetry(transient, 0, 3))
	assert.False(t, ShouldRetry(transient, 3, 3))
	assert.False(t, ShouldRetry(NewPermanentError("bad", nil), 0, 3))
}

func TestDecodeValue_IsPermanentOnBadJSON(t *testing.T) {
	msg := Message{Value: []byte("{not json")}
	var out map[string]any
	err := msg.DecodeValue(&out)
	require.Error(t, err)
	assert.Equal(t, ErrorTypePermanent, ClassifyError(err))
}
