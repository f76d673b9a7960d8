package state

import (
	"context"
	"log"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"chopper/config"
)

func TestContextWithEnv(t *testing.T) {
	env := EnvFromContext(ContextWithEnv(context.Background()))
	if env == nil {
		t.Fatal("EnvFromContext() returned nil")
	}
	if env.start.IsZero() {
		t.Error("Environment start time not set")
	}
}

func TestEnvFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when env not in context")
		}
	}()
	EnvFromContext(context.Background())
}

func TestLocalEnv_Uptime(t *testing.T) {
	env := &LocalEnv{start: time.Now().Add(-time.Second)}
	if uptime := env.Uptime(); uptime < time.Second {
		t.Errorf("Uptime() = %v, expected at least 1s", uptime)
	}
}

func TestLocalEnv_HasStylesheet(t *testing.T) {
	tests := []struct {
		name string
		env  *LocalEnv
		want bool
	}{
		{"nothing", &LocalEnv{Cfg: &config.Config{}}, false},
		{"no config", &LocalEnv{}, false},
		{"empty stylesheet", &LocalEnv{Stylesheet: []byte{}}, true},
		{"page styles", &LocalEnv{Cfg: &config.Config{Extraction: config.ExtractionConfig{PageStyles: true}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.HasStylesheet(); got != tt.want {
				t.Errorf("HasStylesheet() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalEnv_RedirectAndRestore(t *testing.T) {
	env := &LocalEnv{
		Log: zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1))),
	}

	for i := range 3 {
		env.RedirectStdLog()
		if env.restoreStdLog == nil {
			t.Errorf("Iteration %d: restoreStdLog not set", i)
		}
		log.Print("redirected")
		env.RestoreStdLog()
		if env.restoreStdLog != nil {
			t.Errorf("Iteration %d: restoreStdLog not cleared", i)
		}
	}
}

func TestLocalEnv_NilLogger(t *testing.T) {
	env := &LocalEnv{}
	env.RedirectStdLog()
	if env.restoreStdLog != nil {
		t.Error("Expected restoreStdLog to remain nil")
	}
	env.RestoreStdLog()
}
