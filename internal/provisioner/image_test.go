package provisioner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dazzle/internal/config"
	"dazzle/pkg/runtime"
	"dazzle/pkg/runtime/runtimetest"
)

type recordingConsole struct {
	lines []string
}

func (c *recordingConsole) PrintInfo(message string) {
	c.lines = append(c.lines, message)
}

func bazelImage(t *testing.T) BuildImage {
	t.Helper()
	img, err := ParseImage("l.gcr.io/google/bazel:latest")
	require.NoError(t, err)
	return img
}

func TestParseImage(t *testing.T) {
	tests := []struct {
		ref  string
		want BuildImage
		str  string
	}{
		{"l.gcr.io/google/bazel:latest", BuildImage{Name: "l.gcr.io/google/bazel", Tag: "latest"}, "l.gcr.io/google/bazel:latest"},
		{"l.gcr.io/google/bazel", BuildImage{Name: "l.gcr.io/google/bazel", Tag: "latest"}, "l.gcr.io/google/bazel:latest"},
		{"alpine:3.20", BuildImage{Name: "alpine", Tag: "3.20"}, "alpine:3.20"},
		{"docker.io/library/alpine:3.20", BuildImage{Name: "alpine", Tag: "3.20"}, "alpine:3.20"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ParseImage(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseImage_Invalid(t *testing.T) {
	_, err := ParseImage("UPPER/Case:tag")
	assert.Error(t, err)

	_, err = ParseImage("")
	assert.Error(t, err)
}

func TestEnsure_PullAlways(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	console := &recordingConsole{}
	rt.On("PullImage", mock.Anything, "l.gcr.io/google/bazel:latest", mock.Anything).
		Run(func(args mock.Arguments) {
			observer := args.Get(2).(runtime.ProgressObserver)
			observer(runtime.ProgressEvent{Status: "Pulling from google/bazel"})
			observer(runtime.ProgressEvent{ID: "a1b2", Status: "Downloading", Progress: "[=>   ] 1MB/10MB"})
			observer(runtime.ProgressEvent{ID: "a1b2", Status: "Downloading", Progress: "[==>  ] 2MB/10MB"})
			observer(runtime.ProgressEvent{ID: "a1b2", Status: "Pull complete"})
		}).
		Return(nil).Once()

	p := NewImageProvisioner(rt, config.PullAlways, console)
	require.NoError(t, p.Ensure(context.Background(), bazelImage(t)))

	rt.AssertExpectations(t)
	assert.Equal(t, []string{
		"Pulling l.gcr.io/google/bazel:latest",
		"Pulling from google/bazel",
		"a1b2: Downloading",
		"a1b2: Pull complete",
	}, console.lines)
}

func TestEnsure_RepeatedCallsPullOnce(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	rt.On("PullImage", mock.Anything, "l.gcr.io/google/bazel:latest", mock.Anything).Return(nil).Once()

	p := NewImageProvisioner(rt, config.PullAlways, &recordingConsole{})
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Ensure(context.Background(), bazelImage(t)))
	}

	rt.AssertNumberOfCalls(t, "PullImage", 1)
}

func TestEnsure_PullMissing(t *testing.T) {
	t.Run("present image is not pulled", func(t *testing.T) {
		rt := &runtimetest.MockContainerRuntime{}
		rt.On("ImageExists", mock.Anything, "l.gcr.io/google/bazel:latest").Return(true, nil).Once()

		p := NewImageProvisioner(rt, config.PullMissing, &recordingConsole{})
		require.NoError(t, p.Ensure(context.Background(), bazelImage(t)))
		require.NoError(t, p.Ensure(context.Background(), bazelImage(t)))

		rt.AssertExpectations(t)
		rt.AssertNotCalled(t, "PullImage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("absent image is pulled", func(t *testing.T) {
		rt := &runtimetest.MockContainerRuntime{}
		rt.On("ImageExists", mock.Anything, "l.gcr.io/google/bazel:latest").Return(false, nil).Once()
		rt.On("PullImage", mock.Anything, "l.gcr.io/google/bazel:latest", mock.Anything).Return(nil).Once()

		p := NewImageProvisioner(rt, config.PullMissing, &recordingConsole{})
		require.NoError(t, p.Ensure(context.Background(), bazelImage(t)))

		rt.AssertExpectations(t)
	})
}

func TestEnsure_PullNever(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	rt.On("ImageExists", mock.Anything, "l.gcr.io/google/bazel:latest").Return(false, nil).Once()

	p := NewImageProvisioner(rt, config.PullNever, &recordingConsole{})
	err := p.Ensure(context.Background(), bazelImage(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, runtime.ErrImageNotFound)
	rt.AssertNotCalled(t, "PullImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsure_PullFailureIsNotCached(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	unavailable := fmt.Errorf("pull image: %w", runtime.ErrRuntimeUnavailable)
	rt.On("PullImage", mock.Anything, "l.gcr.io/google/bazel:latest", mock.Anything).Return(unavailable).Once()
	rt.On("PullImage", mock.Anything, "l.gcr.io/google/bazel:latest", mock.Anything).Return(nil).Once()

	p := NewImageProvisioner(rt, config.PullAlways, &recordingConsole{})

	err := p.Ensure(context.Background(), bazelImage(t))
	assert.ErrorIs(t, err, runtime.ErrRuntimeUnavailable)
	assert.Contains(t, err.Error(), "failed to pull image l.gcr.io/google/bazel:latest")

	require.NoError(t, p.Ensure(context.Background(), bazelImage(t)))
	rt.AssertNumberOfCalls(t, "PullImage", 2)
}

func TestEnsure_ExistenceCheckFailure(t *testing.T) {
	rt := &runtimetest.MockContainerRuntime{}
	rt.On("ImageExists", mock.Anything, mock.Anything).Return(false, errors.New("daemon hiccup"))

	p := NewImageProvisioner(rt, config.PullMissing, &recordingConsole{})
	err := p.Ensure(context.Background(), bazelImage(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check for image")
}

func TestEnsure_UnknownPolicy(t *testing.T) {
	p := NewImageProvisioner(&runtimetest.MockContainerRuntime{}, "sometimes", &recordingConsole{})
	assert.Error(t, p.Ensure(context.Background(), bazelImage(t)))
}
