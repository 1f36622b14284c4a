// Package retry retries connection establishment with exponential backoff.
//
// Only opening a connection is retried. Stage work (queries, writes, loads)
// runs once and its failure is reported to the caller.
package retry

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
)

// PostgreSQL error codes for transient conditions outside the
// always-transient classes 08, 53 and 57.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeLockNotAvailable     = "55P03"
)

// Server error numbers that indicate a temporary condition.
const (
	mysqlTooManyConnections = 1040
	mysqlLockWaitTimeout    = 1205
	mysqlDeadlock           = 1213

	mssqlDeadlockVictim  = 1205
	mssqlDatabaseStartup = 4060
	mssqlServiceBusy     = 40501
	mssqlUnavailable     = 40613
)

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection failure",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"too many connections",
	"server closed the connection",
	"unexpected eof",
}

// SQLErrorClassifier recognizes transient errors from the PostgreSQL, MySQL
// and SQL Server drivers as well as network-level failures.
type SQLErrorClassifier struct{}

// NewSQLErrorClassifier creates a new classifier.
func NewSQLErrorClassifier() *SQLErrorClassifier {
	return &SQLErrorClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *SQLErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgCode(pgErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlTooManyConnections, mysqlLockWaitTimeout, mysqlDeadlock:
			return true
		}
		return false
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case mssqlDeadlockVictim, mssqlDatabaseStartup, mssqlServiceBusy, mssqlUnavailable:
			return true
		}
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	if isNetworkError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func isTransientPgCode(code string) bool {
	// Connection exception, insufficient resources, operator intervention
	for _, class := range []string{"08", "53", "57"} {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	switch code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeLockNotAvailable:
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		for _, errno := range []syscall.Errno{
			syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			syscall.ENETUNREACH,
			syscall.EHOSTUNREACH,
		} {
			if errors.Is(opErr.Err, errno) {
				return true
			}
		}
	}
	return false
}
