package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"

	"dazzle/pkg/runtime"
)

func TestNewDockerRuntime_RequiresDockerDaemon(t *testing.T) {
	// Succeeds when a daemon is running; otherwise the error must carry context.
	rt, err := NewDockerRuntime(context.Background())
	if err != nil {
		errorMsg := err.Error()
		if errorMsg == "" {
			t.Error("Error message should not be empty")
		}
		if !errors.Is(err, runtime.ErrRuntimeUnavailable) {
			assert.Contains(t, errorMsg, "failed to create Docker client")
		}
		return
	}
	defer rt.Close()
}

func TestClassify(t *testing.T) {
	cause := errors.New("daemon said no")

	tests := []struct {
		name     string
		err      error
		notFound error
		want     error
	}{
		{"connection failed", client.ErrorConnectionFailed("unix:///var/run/docker.sock"), runtime.ErrNotFound, runtime.ErrRuntimeUnavailable},
		{"container not found", errdefs.NotFound(cause), runtime.ErrNotFound, runtime.ErrNotFound},
		{"image not found", errdefs.NotFound(cause), runtime.ErrImageNotFound, runtime.ErrImageNotFound},
		{"invalid parameter", errdefs.InvalidParameter(cause), runtime.ErrNotFound, runtime.ErrInvalidConfig},
		{"conflict", errdefs.Conflict(cause), runtime.ErrNotFound, runtime.ErrAlreadyRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err, tt.notFound)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
			assert.Contains(t, got.Error(), "op: ")
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	cause := errors.New("boom")
	got := classify("remove container abc", cause, runtime.ErrNotFound)

	assert.ErrorIs(t, got, cause)
	assert.NotErrorIs(t, got, runtime.ErrNotFound)
	assert.NotErrorIs(t, got, runtime.ErrRuntimeUnavailable)
	assert.Equal(t, "remove container abc: boom", got.Error())
}

func TestIsMissingImageMessage(t *testing.T) {
	assert.True(t, isMissingImageMessage("manifest for foo:bar not found"))
	assert.True(t, isMissingImageMessage("MANIFEST UNKNOWN"))
	assert.False(t, isMissingImageMessage("unauthorized: authentication required"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}
