/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromYAML(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	c := cfg.ConnectionConfig
	assert.Equal(t, "sqlite", c.Type)
	assert.Equal(t, ":memory:", c.DBName)
	assert.Equal(t, 4, c.MaxOpenConns)
	assert.Equal(t, 3*time.Second, c.ConnectTimeout)
	assert.Equal(t, 500*time.Millisecond, c.SlowQueryTime)
	assert.Equal(t, time.Duration(0), c.HealthCheckInterval)
	// untouched keys keep their defaults
	assert.Equal(t, 10, c.MaxIdleConns)
	assert.True(t, c.EnableReconnect)

	assert.False(t, cfg.ORMConfig.OutputVirtualsOrDefault())
	assert.Equal(t, "warn", cfg.LogConfig.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join("testdata", "does-not-exist.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_SHELF_DOTENV_MARKER=yes\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("DB_SHELF_DOTENV_MARKER") })

	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_CONNECT_TIMEOUT", "7s")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	cfg, err := LoadConfig("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "yes", os.Getenv("DB_SHELF_DOTENV_MARKER"))

	c := cfg.ConnectionConfig
	assert.Equal(t, "postgres", c.Type)
	assert.Equal(t, "db.internal", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, 7*time.Second, c.ConnectTimeout)
	assert.True(t, c.EnableQueryLog)
}

func TestORMConfigDefaultsToOutputVirtuals(t *testing.T) {
	assert.True(t, ORMConfig{}.OutputVirtualsOrDefault())
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := withDefaults(&ConnectionConfig{Type: "sqlite", MaxOpenConns: 2})
	assert.Equal(t, 2, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3, cfg.MaxReconnectTries)
}
