package pgtools

import "fmt"

// Command tags printed by successful role statements.
const (
	CreateRoleTag = "CREATE ROLE"
	DropRoleTag   = "DROP ROLE"
	AlterRoleTag  = "ALTER ROLE"
)

// CreateUser returns the statement creating name. Admin users get superuser,
// role creation, replication and database creation rights.
func CreateUser(name, password string, admin bool) string {
	attrs := ""
	if admin {
		attrs = " SUPERUSER CREATEROLE REPLICATION CREATEDB"
	}
	return fmt.Sprintf("create user %s%s password '%s'", name, attrs, password)
}

// DropUser returns the statement dropping name if it exists.
func DropUser(name string) string {
	return "drop user if exists " + name
}

// AlterPassword returns the statement changing the password of name.
func AlterPassword(name, password string) string {
	return fmt.Sprintf("alter user %s password '%s'", name, password)
}
