package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestNew はロガー生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSON形式でロガーが生成されること", func(t *testing.T) {
		t.Parallel()

		l, err := New("info", FormatJSON)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console形式とdebugレベルでロガーが生成されること", func(t *testing.T) {
		t.Parallel()

		l, err := New("DEBUG", FormatConsole)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New("verbose", FormatJSON)
		assert.Error(t, err)
	})

	t.Run("不正な形式はエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New("info", "xml")
		assert.Error(t, err)
	})
}
