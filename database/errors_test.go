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
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	cases := []struct {
		name string
		err  error
		want SQLError
	}{
		{"no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), NoRowsErr},
		{"refused", fmt.Errorf("ping: %w", refused), ConnectionRefusedErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, NoTableErr},
		{"pq unique", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"pq fk", &pq.Error{Code: "23503"}, ForeignKeyViolationErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: widgets.name (2067)"), DuplicateKeyErr},
		{"sqlite missing table", errors.New("SQL logic error: no such table: widgets (1)"), NoTableErr},
		{"other", errors.New("boom"), UnknownErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestIsSqlErrorUnknown(t *testing.T) {
	is, kind := IsSqlError(errors.New("boom"))
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)

	is, _ = IsSqlError(nil)
	assert.False(t, is)
}

func TestIsConnectionRefused(t *testing.T) {
	assert.True(t, IsConnectionRefused(errors.New("dial tcp 127.0.0.1:1: connect: connection refused")))
	assert.True(t, IsConnectionRefused(fmt.Errorf("wrapped: %w", syscall.ECONNREFUSED)))
	assert.False(t, IsConnectionRefused(errors.New("timeout")))
	assert.False(t, IsConnectionRefused(nil))
}

func TestSQLErrorString(t *testing.T) {
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "connection_refused", ConnectionRefusedErr.String())
	assert.Equal(t, "unknown", SQLError(999).String())
}
