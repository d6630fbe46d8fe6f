/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

// DefaultDisasterNodeName is the monitor node name of a disaster-recovery site.
const DefaultDisasterNodeName = "disaster"

// Path returns the name segment used for the group's StatefulSets.
func (r InstanceRole) Path() string {
	switch r {
	case RoleReadWrite:
		return "postgresql-readwriteinstance"
	case RoleReadOnly:
		return "postgresql-readonlyinstance"
	default:
		return "autofailover"
	}
}

// ComposeService returns the docker-compose service (and container) name
// used for the role on machines.
func (r InstanceRole) ComposeService() string {
	if r == RoleAutoFailover {
		return "autofailover"
	}
	return "postgresql"
}

// MachineMode reports whether the cluster runs on SSH machines instead of pods.
func (s *PostgreSQLClusterSpec) MachineMode() bool {
	return len(s.AutoFailover.Machines) > 0 ||
		len(s.PostgreSQL.ReadWriteInstance.Machines) > 0 ||
		len(s.PostgreSQL.ReadOnlyInstance.Machines) > 0
}

// Template returns the instance template of a group.
func (s *PostgreSQLClusterSpec) Template(role InstanceRole) *InstanceTemplate {
	switch role {
	case RoleReadWrite:
		return &s.PostgreSQL.ReadWriteInstance.InstanceTemplate
	case RoleReadOnly:
		return &s.PostgreSQL.ReadOnlyInstance.InstanceTemplate
	default:
		return &s.AutoFailover.InstanceTemplate
	}
}

// Machines returns the machine addresses of a group.
func (s *PostgreSQLClusterSpec) Machines(role InstanceRole) []string {
	return s.Template(role).Machines
}

// Replicas returns the number of instances in a group. In machine mode this
// is the number of machines; otherwise the monitor always has one instance,
// the read-write group defaults to one and the read-only group to zero.
func (s *PostgreSQLClusterSpec) Replicas(role InstanceRole) int32 {
	if s.MachineMode() {
		return int32(len(s.Machines(role)))
	}
	switch role {
	case RoleReadWrite:
		if r := s.PostgreSQL.ReadWriteInstance.Replicas; r != nil {
			return *r
		}
		return 1
	case RoleReadOnly:
		if r := s.PostgreSQL.ReadOnlyInstance.Replicas; r != nil {
			return *r
		}
		return 0
	default:
		return 1
	}
}

// HBAs returns the pg_hba.conf lines injected into a group.
func (s *PostgreSQLClusterSpec) HBAs(role InstanceRole) []string {
	if role == RoleAutoFailover {
		return s.AutoFailover.HBAs
	}
	return s.PostgreSQL.HBAs
}

// Configs returns the postgresql.conf settings injected into a group.
func (s *PostgreSQLClusterSpec) Configs(role InstanceRole) []string {
	if role == RoleAutoFailover {
		return s.AutoFailover.Configs
	}
	return s.PostgreSQL.Configs
}

// RestoreRequested reports whether the primary is seeded from a restore.
func (s *PostgreSQLClusterSpec) RestoreRequested() bool {
	return s.Restore != nil && s.Restore.FromSSH != nil
}

// InDisasterBackup reports whether the cluster follows a remote site.
func (s *PostgreSQLClusterSpec) InDisasterBackup() bool {
	return s.DisasterBackup != nil && s.DisasterBackup.Enabled
}

// DisasterNodeName returns the monitor node name of the remote site.
func (s *PostgreSQLClusterSpec) DisasterNodeName() string {
	if s.DisasterBackup == nil || s.DisasterBackup.NodeName == "" {
		return DefaultDisasterNodeName
	}
	return s.DisasterBackup.NodeName
}

// ArchiveEnabled reports whether WAL archiving to S3 is configured.
func (s *PostgreSQLClusterSpec) ArchiveEnabled() bool {
	if s.Backup == nil || s.Backup.Archive != "on" {
		return false
	}
	return s.Backup.Mode == BackupModeS3Manual || s.Backup.Mode == BackupModeS3Cron
}
