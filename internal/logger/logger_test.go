package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{
			name:  "debug level production",
			level: "debug",
		},
		{
			name:        "warn level development",
			level:       "warn",
			development: true,
		},
		{
			name:    "invalid level",
			level:   "verbose",
			wantErr: true,
		},
		{
			name:    "zap only level is rejected",
			level:   "dpanic",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, logger)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, logger.SugaredLogger)
			require.Equal(t, tt.level, logger.GetLevel())
		})
	}
}

func TestLogger_SetLevel(t *testing.T) {
	logger, err := NewLogger("info", false)
	require.NoError(t, err)

	require.Error(t, logger.SetLevel("invalid"))
	require.Equal(t, "info", logger.GetLevel())

	require.NoError(t, logger.SetLevel("debug"))
	require.Equal(t, "debug", logger.GetLevel())
	require.True(t, logger.atomicLevel.Enabled(zapcore.DebugLevel))
}

func TestLogger_WithComponentSharesLevel(t *testing.T) {
	base, err := NewLogger("warn", false)
	require.NoError(t, err)
	require.Equal(t, "", base.GetComponent())

	registry := base.WithComponent("registry")
	dispatcher := base.WithComponent("dispatcher")

	require.Equal(t, "registry", registry.GetComponent())
	require.Equal(t, "dispatcher", dispatcher.GetComponent())

	require.NoError(t, base.SetLevel("error"))
	require.Equal(t, "error", registry.GetLevel())
	require.Equal(t, "error", dispatcher.GetLevel())
}

func TestNewComponentLogger_PanicsOnInvalidLevel(t *testing.T) {
	require.Panics(t, func() {
		_ = NewComponentLogger("registry", "loud", false)
	})
}

type stubLoggingConfig struct {
	defaultLevel    string
	development     bool
	componentLevels map[string]string
}

func (s *stubLoggingConfig) GetComponentLevel(component string) string {
	return s.componentLevels[component]
}

func (s *stubLoggingConfig) GetDefaultLevel() string { return s.defaultLevel }

func (s *stubLoggingConfig) IsDevelopment() bool { return s.development }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	tests := []struct {
		name          string
		component     string
		config        LoggingConfig
		expectedLevel string
	}{
		{
			name:      "component specific level",
			component: "registry",
			config: &stubLoggingConfig{
				defaultLevel:    "info",
				componentLevels: map[string]string{"registry": "debug"},
			},
			expectedLevel: "debug",
		},
		{
			name:          "falls back to default level",
			component:     "dispatcher",
			config:        &stubLoggingConfig{defaultLevel: "warn"},
			expectedLevel: "warn",
		},
		{
			name:          "empty config falls back to info",
			component:     "dead-letter",
			config:        &stubLoggingConfig{},
			expectedLevel: "info",
		},
		{
			name:          "nil config",
			component:     "provider",
			config:        nil,
			expectedLevel: "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewComponentLoggerFromConfig(tt.component, tt.config)
			require.Equal(t, tt.component, logger.GetComponent())
			require.Equal(t, tt.expectedLevel, logger.GetLevel())
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	require.NotNil(t, logger)

	logger.Debug("test")
	logger.Errorw("test", "key", "value")
	require.NoError(t, logger.Close())
}
