package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RASA_THRESHOLD", "")
	t.Setenv("PROVIDER_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 0.8, cfg.RasaThreshold)
	assert.Equal(t, 0.7, cfg.DialogflowThreshold)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RASA_THRESHOLD", "0.65")
	t.Setenv("PROVIDER_TIMEOUT", "1500ms")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("ELASTICSEARCH_ADDRESSES", "http://es-1:9200, http://es-2:9200,")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 0.65, cfg.RasaThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, []string{"http://es-1:9200", "http://es-2:9200"}, cfg.ElasticAddresses)
}

func TestMalformedValuesFallBack(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		get  func() any
		want any
	}{
		{"int", "X_INT", "ten", func() any { return getIntEnv("X_INT", 10) }, 10},
		{"float", "X_FLOAT", "half", func() any { return getFloatEnv("X_FLOAT", 0.5) }, 0.5},
		{"bool", "X_BOOL", "maybe", func() any { return getBoolEnv("X_BOOL", true) }, true},
		{"duration", "X_DUR", "soon", func() any { return getDurationEnv("X_DUR", time.Second) }, time.Second},
		{"list", "X_LIST", " , ", func() any { return getListEnv("X_LIST", []string{"a"}) }, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			assert.Equal(t, tt.want, tt.get())
		})
	}
}
