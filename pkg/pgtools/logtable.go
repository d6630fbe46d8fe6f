package pgtools

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Statements and tags for the csv log foreign tables.
const (
	CreateFileFDW      = "create extension file_fdw"
	CreateFileFDWTag   = "CREATE EXTENSION"
	CreateLogServer    = "create server pg_file_server foreign data wrapper file_fdw"
	CreateLogServerTag = "CREATE SERVER"
	CreateLogTableTag  = "CREATE FOREIGN TABLE"

	// LogDays is the number of daily log files kept by log_filename.
	LogDays = 31
)

// DefaultLogTableVersion is the column layout used for versions that have
// none of their own.
const DefaultLogTableVersion = 14

var logColumns12 = []string{
	"log_time timestamp(3) without time zone",
	"user_name text",
	"database_name text",
	"process_id integer",
	"connection_from text",
	"session_id text",
	"session_line_num bigint",
	"command_tag text",
	"session_start_time timestamp without time zone",
	"virtual_transaction_id text",
	"transaction_id bigint",
	"error_severity text",
	"sql_state_code text",
	"message text",
	"detail text",
	"hint text",
	"internal_query text",
	"internal_query_pos integer",
	"context text",
	"query text",
	"query_pos integer",
	"location text",
	"application_name text",
}

// logColumns returns the csvlog columns of a major version and whether the
// version has a known layout.
func logColumns(major int) ([]string, bool) {
	with := make([]string, len(logColumns12))
	for i, c := range logColumns12 {
		with[i] = strings.Replace(c, "without time zone", "with time zone", 1)
	}
	v13 := append(with, "backend_type text")
	v14 := append(slices.Clone(v13), "leader_pid integer", "query_id bigint")

	switch major {
	case 12:
		return logColumns12, true
	case 13:
		return v13, true
	case 14:
		return v14, true
	default:
		return v14, false
	}
}

// HasLogTableLayout reports whether major has its own column layout.
func HasLogTableLayout(major int) bool {
	_, ok := logColumns(major)
	return ok
}

// LogTableName is the foreign table over the log of day (1..LogDays).
func LogTableName(day int) string { return fmt.Sprintf("log_postgresql_%02d", day) }

// CreateLogTable returns the statement creating the foreign table over the
// csv log of day for a server of the given major version.
func CreateLogTable(major, day int) string {
	cols, _ := logColumns(major)
	return fmt.Sprintf("CREATE foreign TABLE %s (%s) server pg_file_server options(filename 'log/postgresql_%02d.csv',format 'csv',header 'true')",
		LogTableName(day), strings.Join(cols, ", "), day)
}

// MajorVersion extracts the PostgreSQL major version from an image
// reference such as "registry:5000/radondb/postgres:13.4-1".
func MajorVersion(image string) (int, error) {
	tag := image
	if i := strings.LastIndex(tag, "/"); i >= 0 {
		tag = tag[i+1:]
	}
	i := strings.LastIndex(tag, ":")
	if i < 0 {
		return 0, fmt.Errorf("image %q has no tag", image)
	}
	tag = tag[i+1:]
	major, _, _ := strings.Cut(tag, "-")
	major, _, _ = strings.Cut(major, ".")
	v, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("image %q tag has no major version: %w", image, err)
	}
	return v, nil
}
