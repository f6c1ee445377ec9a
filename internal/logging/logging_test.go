package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{level: "info", format: "json"},
		{level: "debug", format: "console"},
		{level: "warn", format: ""},
		{level: "loud", format: "json", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	logger, err := New("warn", "json")
	require.NoError(t, err)

	assert.Nil(t, logger.Check(zap.InfoLevel, "dropped"))
	assert.NotNil(t, logger.Check(zap.ErrorLevel, "kept"))
}
