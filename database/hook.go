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
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var silentHooks atomic.Bool

// EnableSilentHooks mutes ErrorQueryHook and SlowQueryHook process-wide.
func EnableSilentHooks(b bool) {
	silentHooks.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

func colorQuery(event *bun.QueryEvent) string {
	if c, ok := operationColors[event.Operation()]; ok {
		return c.Sprint(event.Query)
	}
	return color.New(color.FgRed).Sprint(event.Query)
}

// ErrorQueryHook logs failed queries together with their classified kind.
// sql.ErrNoRows and sql.ErrTxDone are expected outcomes and are skipped.
type ErrorQueryHook struct {
	logger Logger
}

var _ bun.QueryHook = (*ErrorQueryHook)(nil)

func NewErrorQueryHook(logger Logger) *ErrorQueryHook {
	return &ErrorQueryHook{logger: logger}
}

func (h *ErrorQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *ErrorQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silentHooks.Load() || h.logger == nil || event.Err == nil {
		return
	}
	if errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone) {
		return
	}
	h.logger.Warn("Database query failed",
		"kind", Classify(event.Err),
		"duration", time.Since(event.StartTime).Round(time.Microsecond),
		"query", colorQuery(event),
		"error", event.Err,
	)
}

// SlowQueryHook logs successful queries that ran longer than slowTime.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{slowTime: slowTime, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if silentHooks.Load() || event.Err != nil || h.logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn(color.New(color.FgYellow, color.BlinkSlow).Sprint("Database slow query detected"),
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", colorQuery(event),
		)
	}
}
