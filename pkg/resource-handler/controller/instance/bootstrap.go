package instance

import (
	"context"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/autofailover"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
)

// CreateLogTables creates the file_fdw server and one foreign table per day
// over the csv logs. Failures are logged.
func CreateLogTables(ctx context.Context, conn connection.Connection, major int) {
	logger := log.FromContext(ctx).WithValues("instance", conn.Name())
	logger.Info("Creating log tables", "major", major)

	if out := connection.ExecuteOrLog(ctx, conn, pgtools.Query(pgtools.CreateFileFDW)); !strings.Contains(out, pgtools.CreateFileFDWTag) {
		logger.Info("Cannot create file_fdw", "output", out)
	}
	if out := connection.ExecuteOrLog(ctx, conn, pgtools.Query(pgtools.CreateLogServer)); !strings.Contains(out, pgtools.CreateLogServerTag) {
		logger.Info("Cannot create log server", "output", out)
	}
	if !pgtools.HasLogTableLayout(major) {
		logger.Info("No log table layout for version, using the default layout",
			"major", major, "default", pgtools.DefaultLogTableVersion)
	}
	for day := 1; day <= pgtools.LogDays; day++ {
		out := connection.ExecuteOrLog(ctx, conn, pgtools.Query(pgtools.CreateLogTable(major, day)))
		if !strings.Contains(out, pgtools.CreateLogTableTag) {
			logger.Info("Cannot create log table", "table", pgtools.LogTableName(day), "output", out)
		}
	}
}

// CreateUsers creates the declared users on the primary among conns, admin
// users first.
func (p *Provisioner) CreateUsers(ctx context.Context, conns connection.Connections, users *pgv1alpha1.UsersSpec) error {
	if users == nil {
		return nil
	}
	primary, err := autofailover.Primary(ctx, conns, p.Policies.Primary)
	if err != nil {
		return err
	}
	if primary == nil {
		log.FromContext(ctx).Info("No primary found, users not created")
		return nil
	}
	for _, u := range users.Admin {
		CreateUser(ctx, primary, u, true)
	}
	for _, u := range users.Normal {
		CreateUser(ctx, primary, u, false)
	}
	return nil
}

// CreateUser creates a user. Failures are logged.
func CreateUser(ctx context.Context, conn connection.Connection, user pgv1alpha1.UserSpec, admin bool) {
	logger := log.FromContext(ctx)
	logger.Info("Creating user", "user", user.Name, "admin", admin)
	if out := connection.ExecuteOrLog(ctx, conn, pgtools.Query(pgtools.CreateUser(user.Name, user.Password, admin))); out != pgtools.CreateRoleTag {
		logger.Info("Cannot create user", "user", user.Name, "output", out)
	}
}

// DropUser drops a user. Failures are logged.
func DropUser(ctx context.Context, conn connection.Connection, user string) {
	logger := log.FromContext(ctx)
	logger.Info("Dropping user", "user", user)
	if out := connection.ExecuteOrLog(ctx, conn, pgtools.Query(pgtools.DropUser(user))); out != pgtools.DropRoleTag {
		logger.Info("Cannot drop user", "user", user, "output", out)
	}
}

// ChangePassword sets the password of a user. Failures are logged.
func ChangePassword(ctx context.Context, conn connection.Connection, user, password string) {
	logger := log.FromContext(ctx)
	logger.Info("Changing user password", "user", user)
	if out := connection.ExecuteOrLog(ctx, conn, pgtools.Query(pgtools.AlterPassword(user, password))); out != pgtools.AlterRoleTag {
		logger.Info("Cannot change user password", "user", user, "output", out)
	}
}

// CorrectPassword probes the operator-managed user of conn's role with the
// password recorded in status and resets it when authentication fails. The
// monitor is checked for autoctl_node, data instances for the replicator.
// It reports whether the password was reset.
func CorrectPassword(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster, conn connection.Connection) bool {
	user, password, port := pgtools.ReplicatorUser, cluster.Status.ReplicatorPassword, pgtools.Port(cluster.Spec.PostgreSQL.Configs)
	if conn.Role() == pgv1alpha1.RoleAutoFailover {
		user, password, port = pgtools.AutoctlNodeUser, cluster.Status.AutoctlNodePassword, pgtools.AutoFailoverPort
	}
	if password == "" {
		return false
	}

	out := connection.ExecuteOrLog(ctx, conn, pgtools.PasswordProbe(conn.Host(), user, password, port))
	if !strings.Contains(out, pgtools.PasswordFailed) {
		return false
	}
	log.FromContext(ctx).Info("Password drifted", "instance", conn.Name(), "user", user)
	ChangePassword(ctx, conn, user, password)
	return true
}

// Restore replaces the data directory of conn with the restore source, then
// corrects the operator passwords. A source that already is the data
// directory of the instance only needs the password correction.
func (p *Provisioner) Restore(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster, conn connection.Connection) error {
	src := cluster.Spec.Restore.FromSSH
	logger := log.FromContext(ctx).WithValues("instance", conn.Name(), "path", src.Path)

	if src.Path == pgtools.DatabaseDir && src.Address == pgtools.RestoreLocal {
		logger.Info("Restoring in place")
		CorrectPassword(ctx, cluster, conn)
		return nil
	}

	copyCmd := pgtools.MoveIntoDatabaseDir(src.Path)
	if src.Address != pgtools.RestoreLocal {
		source, err := p.Connector.Machine(ctx, pgv1alpha1.RoleReadWrite, src.Address)
		if err != nil {
			return err
		}
		defer func() {
			if err := source.Close(); err != nil {
				logger.Error(err, "Failed to close restore source")
			}
		}()
		addr := source.Address()
		copyCmd = pgtools.CopyIntoDatabaseDir(addr.User, addr.Password, addr.Host, addr.Port, src.Path)
	}

	logger.Info("Restoring data directory", "source", src.Address)
	if _, err := connection.Execute(ctx, conn, pgtools.Pause(), connection.Raise); err != nil {
		return err
	}
	instance := connection.Connections{conn}
	if err := autofailover.WaitRunning(ctx, instance, p.Policies); err != nil {
		return err
	}
	for _, cmd := range []string{pgtools.RemoveDatabaseDir(), copyCmd, pgtools.Resume()} {
		if _, err := connection.Execute(ctx, conn, cmd, connection.Raise); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
	}
	if err := autofailover.WaitInitialized(ctx, instance, p.Policies); err != nil {
		return err
	}
	CorrectPassword(ctx, cluster, conn)
	return nil
}
