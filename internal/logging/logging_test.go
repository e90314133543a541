package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	cases := []struct {
		name string
		opt  Options
		want zapcore.Level
	}{
		{"production", Options{}, zapcore.InfoLevel},
		{"debug", Options{Debug: true}, zapcore.DebugLevel},
		{"quiet", Options{Quiet: true}, zapcore.WarnLevel},
		{"debug wins", Options{Debug: true, Quiet: true}, zapcore.DebugLevel},
		{"development", Options{Development: true}, zapcore.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(tc.opt)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tc.want))
			if tc.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tc.want-1))
			}
		})
	}
}
