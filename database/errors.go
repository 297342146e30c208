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
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	ErrAlreadyBound    = errors.New("database is already bound")
	ErrNotBound        = errors.New("database is not bound")
	ErrUnknownProvider = errors.New("unknown database provider")
)

// DatabaseError reports that the database could not be reached. It is what
// Connect returns once every attempt has failed.
type DatabaseError struct {
	Msg string
	Err error
}

func newDatabaseError(cause error) *DatabaseError {
	return &DatabaseError{
		Msg: "Unable to connect to the database: " + cause.Error(),
		Err: cause,
	}
}

func (e *DatabaseError) Error() string { return e.Msg }

func (e *DatabaseError) Unwrap() error { return e.Err }

// ErrorKind is a coarse classification of connection failures.
type ErrorKind int

const (
	UnknownErr ErrorKind = iota
	AuthFailedErr
	UnknownDatabaseErr
	UnreachableErr
	ServerBusyErr
)

func (k ErrorKind) String() string {
	switch k {
	case AuthFailedErr:
		return "auth_failed"
	case UnknownDatabaseErr:
		return "unknown_database"
	case UnreachableErr:
		return "unreachable"
	case ServerBusyErr:
		return "server_busy"
	default:
		return "unknown"
	}
}

// Classify inspects the driver errors of every supported provider and
// reports why a connection attempt failed.
func Classify(err error) ErrorKind {
	if err == nil {
		return UnknownErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1044, 1045, 1698:
			return AuthFailedErr
		case 1049:
			return UnknownDatabaseErr
		case 1040, 1203:
			return ServerBusyErr
		default:
			return UnknownErr
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return UnreachableErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return UnreachableErr
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "password authentication failed"),
		strings.Contains(s, "access denied"):
		return AuthFailedErr
	case strings.Contains(s, "does not exist") && strings.Contains(s, "database"),
		strings.Contains(s, "unknown database"):
		return UnknownDatabaseErr
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "i/o timeout"):
		return UnreachableErr
	}
	return UnknownErr
}

func classifySQLState(code string) ErrorKind {
	switch {
	case code == "28P01" || code == "28000":
		return AuthFailedErr
	case code == "3D000":
		return UnknownDatabaseErr
	case code == "53300" || code == "57P03":
		return ServerBusyErr
	case strings.HasPrefix(code, "08"):
		return UnreachableErr
	default:
		return UnknownErr
	}
}
