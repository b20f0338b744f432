package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/testutil"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writerFactory(w io.WriteCloser) WriterFactory {
	return func(config.FileEmitterConfig) (io.WriteCloser, error) {
		return w, nil
	}
}

func TestFileEmitter_Start(t *testing.T) {
	cfg := config.FileEmitterConfig{Enabled: true, Path: "/tmp/cwlogs.jsonl"}

	t.Run("success", func(t *testing.T) {
		e := NewFileEmitter(cfg, testutil.NewTestLogger(), WithWriterFactory(writerFactory(mocks.NewWriteCloser(t))))
		assert.NoError(t, e.Start(context.Background()))
		assert.Equal(t, "file", e.Name())
	})

	t.Run("factory error", func(t *testing.T) {
		factory := func(config.FileEmitterConfig) (io.WriteCloser, error) {
			return nil, errors.New("factory error")
		}
		e := NewFileEmitter(cfg, testutil.NewTestLogger(), WithWriterFactory(factory))
		assert.ErrorContains(t, e.Start(context.Background()), "factory error")
	})
}

func TestFileEmitter_Emit(t *testing.T) {
	cfg := config.FileEmitterConfig{Enabled: true}

	t.Run("archival line", func(t *testing.T) {
		writer := mocks.NewWriteCloser(t)
		writer.On("Write", mock.MatchedBy(func(p []byte) bool {
			if !strings.HasSuffix(string(p), "\n") {
				return false
			}
			var record map[string]any
			if err := json.Unmarshal(p, &record); err != nil {
				return false
			}
			fields, _ := record["extractedFields"].(map[string]any)
			return record["id"] == testutil.EventID1 &&
				record["logGroup"] == "/aws/apigateway/access" &&
				fields["status"] == "304"
		})).Return(1, nil).Once()

		e := NewFileEmitter(cfg, testutil.NewTestLogger(), WithWriterFactory(writerFactory(writer)))
		require.NoError(t, e.Start(context.Background()))
		assert.NoError(t, e.Emit(context.Background(), accessEvent()))
	})

	t.Run("write error", func(t *testing.T) {
		writer := mocks.NewWriteCloser(t)
		writer.On("Write", mock.Anything).Return(0, errors.New("disk full")).Once()

		e := NewFileEmitter(cfg, testutil.NewTestLogger(), WithWriterFactory(writerFactory(writer)))
		require.NoError(t, e.Start(context.Background()))
		assert.ErrorContains(t, e.Emit(context.Background(), accessEvent()), "disk full")
	})

	t.Run("not started", func(t *testing.T) {
		e := NewFileEmitter(cfg, testutil.NewTestLogger())
		assert.ErrorIs(t, e.Emit(context.Background(), accessEvent()), ErrNotStarted)
	})
}

func TestFileEmitter_Stop(t *testing.T) {
	writer := mocks.NewWriteCloser(t)
	writer.On("Close").Return(nil).Once()

	e := NewFileEmitter(config.FileEmitterConfig{}, testutil.NewTestLogger(), WithWriterFactory(writerFactory(writer)))
	require.NoError(t, e.Start(context.Background()))

	assert.NoError(t, e.Stop(context.Background()))
	assert.NoError(t, e.Stop(context.Background()))
}

func TestFileEmitter_Lumberjack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "events.jsonl")
	e := NewFileEmitter(config.FileEmitterConfig{Enabled: true, Path: path, MaxSizeMB: 1}, testutil.NewTestLogger())
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Emit(context.Background(), accessEvent()))
	require.NoError(t, e.Emit(context.Background(), lambdaEvent()))
	require.NoError(t, e.Stop(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"id":"`+testutil.EventID2+`"`)
}
