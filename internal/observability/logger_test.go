package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantErr   string
		wantLevel zapcore.Level
	}{
		{name: "default json logger", level: "info", format: "json", wantLevel: zapcore.InfoLevel},
		{name: "development console logger", level: "debug", format: "console", wantLevel: zapcore.DebugLevel},
		{name: "text is console", level: "warn", format: "text", wantLevel: zapcore.WarnLevel},
		{name: "defaults when not set", wantLevel: zapcore.InfoLevel},
		{name: "upper case level", level: "ERROR", format: "json", wantLevel: zapcore.ErrorLevel},
		{name: "invalid log level", level: "invalid", format: "json", wantErr: "invalid log level"},
		{name: "invalid log format", level: "info", format: "xml", wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, logger)
			defer logger.Sync()

			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}
