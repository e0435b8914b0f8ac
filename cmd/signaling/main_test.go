package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mossy-p/reception-signaling/config"
	"github.com/mossy-p/reception-signaling/internal/middleware"
	"github.com/mossy-p/reception-signaling/pkg/logger"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "calls.sqlite")
	path := filepath.Join(dir, "config.yaml")
	content := "auth:\n  jwt_secret: cli-secret\n  token_ttl: 2h\n" +
		"database:\n  driver: sqlite\n  path: " + dbPath + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	chdir(t, t.TempDir())
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		configPath = ""
		logger.SetLogger(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	require.Contains(t, out, "serve")
	require.Contains(t, out, "migrate")
	require.Contains(t, out, "token")
}

func TestTokenCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "token", "--config", cfgPath, "--name", "Sam", "--department", "Sales", "--user-id", "u-1")
	require.NoError(t, err)

	claims, err := middleware.ParseToken("cli-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "Sales", claims.Department)
	require.WithinDuration(t, time.Now().Add(2*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCommandRequiresName(t *testing.T) {
	tokenName = ""
	_, err := execute(t, "token")
	require.ErrorContains(t, err, "--name is required")
}

func TestMigrateCommand(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := execute(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "migrated sqlite database")
	require.FileExists(t, dbPath)
}

func TestBootstrapAndShutdown(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	chdir(t, t.TempDir())
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	stack, err := bootstrapRuntime(context.Background(), cfg, logger.WithModule("test"))
	require.NoError(t, err)
	require.NotNil(t, stack.Router)
	require.Nil(t, stack.Redis)

	require.NoError(t, stack.Shutdown(context.Background()))
}

func TestBootstrapWithUnreachableRedisFallsBack(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	chdir(t, t.TempDir())
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: "1", TTL: time.Hour}

	stack, err := bootstrapRuntime(context.Background(), cfg, logger.WithModule("test"))
	require.NoError(t, err)
	require.Nil(t, stack.Redis)
	require.NoError(t, stack.Shutdown(context.Background()))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
