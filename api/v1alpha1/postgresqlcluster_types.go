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

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ============================================================================
// RBAC Markers
// ============================================================================
//
// +kubebuilder:rbac:groups=postgres.radondb.io,resources=postgresqlclusters,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=postgres.radondb.io,resources=postgresqlclusters/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=postgres.radondb.io,resources=postgresqlclusters/finalizers,verbs=update
// +kubebuilder:rbac:groups=apps,resources=statefulsets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=services;persistentvolumeclaims;secrets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;patch
// +kubebuilder:rbac:groups="",resources=pods/exec,verbs=create
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// ============================================================================
// Enumerations
// ============================================================================

// Action is the desired run state of every instance in the cluster.
// +kubebuilder:validation:Enum=start;stop
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// StreamingMode selects how read-only instances take part in replication.
// +kubebuilder:validation:Enum=sync;async
type StreamingMode string

const (
	// StreamingSync makes read-only instances count towards the replication quorum.
	StreamingSync StreamingMode = "sync"
	// StreamingAsync keeps read-only instances out of the replication quorum.
	StreamingAsync StreamingMode = "async"
)

// InstanceRole identifies one of the three instance groups of a cluster.
type InstanceRole string

const (
	RoleAutoFailover InstanceRole = "autofailover"
	RoleReadWrite    InstanceRole = "readwrite"
	RoleReadOnly     InstanceRole = "readonly"
)

// ServiceSelector chooses the instances a user Service routes to.
// +kubebuilder:validation:Enum=autofailover;primary;standby;readonly;standby-readonly
type ServiceSelector string

const (
	ServiceSelectorAutoFailover    ServiceSelector = "autofailover"
	ServiceSelectorPrimary         ServiceSelector = "primary"
	ServiceSelectorStandby         ServiceSelector = "standby"
	ServiceSelectorReadOnly        ServiceSelector = "readonly"
	ServiceSelectorStandbyReadOnly ServiceSelector = "standby-readonly"
)

// BackupMode is the backup policy consulted by the periodic corrector.
// +kubebuilder:validation:Enum=none;s3-manual;s3-cron
type BackupMode string

const (
	BackupModeNone     BackupMode = "none"
	BackupModeS3Manual BackupMode = "s3-manual"
	BackupModeS3Cron   BackupMode = "s3-cron"
)

// CreatePhase records how far the initial cluster bring-up has progressed.
type CreatePhase string

const (
	CreatePhaseBegin           CreatePhase = "begin"
	CreatePhaseAddAutoFailover CreatePhase = "addAutoFailover"
	CreatePhaseAddReadWrite    CreatePhase = "addReadWrite"
	CreatePhaseAddReadOnly     CreatePhase = "addReadOnly"
	CreatePhaseFinished        CreatePhase = "finished"
)

// Phase represents the aggregated health of the cluster's instances.
type Phase string

const (
	PhaseInitializing Phase = "Initializing"
	PhaseProgressing  Phase = "Progressing"
	PhaseHealthy      Phase = "Healthy"
)

// ============================================================================
// Instance Group Specs
// ============================================================================

// InstanceTemplate describes where and how the instances of one group run.
// A group runs on Kubernetes pods unless Machines is set.
type InstanceTemplate struct {
	// PodSpec is the pod template. It must contain a container named "postgresql".
	// +optional
	PodSpec corev1.PodSpec `json:"podspec,omitempty"`

	// VolumeClaimTemplates are copied into each instance StatefulSet.
	// +optional
	VolumeClaimTemplates []corev1.PersistentVolumeClaim `json:"volumeClaimTemplates,omitempty"`

	// Machines lists SSH targets in the form user:password:host:port.
	// +optional
	Machines []string `json:"machines,omitempty"`
}

// AutoFailoverSpec defines the pg_auto_failover monitor.
type AutoFailoverSpec struct {
	InstanceTemplate `json:",inline"`

	// HBAs are pg_hba.conf lines for the monitor.
	// +optional
	HBAs []string `json:"hbas,omitempty"`

	// Configs are postgresql.conf settings in name=value form.
	// +optional
	Configs []string `json:"configs,omitempty"`
}

// ReadWriteInstanceSpec defines the group that holds the primary.
type ReadWriteInstanceSpec struct {
	InstanceTemplate `json:",inline"`

	// +kubebuilder:validation:Minimum=1
	// +optional
	Replicas *int32 `json:"replicas,omitempty"`
}

// ReadOnlyInstanceSpec defines the read-only replica group.
type ReadOnlyInstanceSpec struct {
	InstanceTemplate `json:",inline"`

	// +kubebuilder:validation:Minimum=0
	// +optional
	Replicas *int32 `json:"replicas,omitempty"`

	// +kubebuilder:default=async
	// +optional
	Streaming StreamingMode `json:"streaming,omitempty"`
}

// UserSpec is a database role managed by the operator.
type UserSpec struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// UsersSpec groups the declared database roles.
type UsersSpec struct {
	// Admin users are created with SUPERUSER CREATEROLE REPLICATION CREATEDB.
	// +optional
	Admin []UserSpec `json:"admin,omitempty"`

	// +optional
	Normal []UserSpec `json:"normal,omitempty"`
}

// PostgreSQLSpec holds the settings shared by the data-bearing groups.
type PostgreSQLSpec struct {
	// +optional
	HBAs []string `json:"hbas,omitempty"`

	// +optional
	Configs []string `json:"configs,omitempty"`

	// +optional
	Users *UsersSpec `json:"users,omitempty"`

	ReadWriteInstance ReadWriteInstanceSpec `json:"readwriteinstance"`

	// +optional
	ReadOnlyInstance ReadOnlyInstanceSpec `json:"readonlyinstance,omitempty"`
}

// ServiceSpec declares a user-facing Service (pods) or virtual IP (machines).
type ServiceSpec struct {
	// Name is suffixed to the cluster name to form the Service name.
	// +kubebuilder:validation:MaxLength=40
	Name string `json:"name"`

	Selector ServiceSelector `json:"selector"`

	// VirtualIP is announced by keepalived in machine mode.
	// +optional
	VirtualIP string `json:"virtualIP,omitempty"`

	// Spec is used as the Service spec. The selector is always overwritten.
	// +optional
	Spec corev1.ServiceSpec `json:"spec,omitempty"`
}

// RestoreFromSSHSpec restores the primary's data directory from a path.
type RestoreFromSSHSpec struct {
	Path string `json:"path"`

	// Address is "local" or user:password:host:port of the source machine.
	Address string `json:"address"`
}

// RestoreSpec replaces user bootstrap with a data restore on first creation.
type RestoreSpec struct {
	// +optional
	FromSSH *RestoreFromSSHSpec `json:"fromssh,omitempty"`
}

// S3Spec is the object storage profile used by barman archiving.
type S3Spec struct {
	Endpoint string `json:"endpoint"`
	Bucket   string `json:"bucket"`
	// +optional
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
}

// BackupSpec is the narrow view of the backup subsystem the operator consults.
type BackupSpec struct {
	// +kubebuilder:default=none
	// +optional
	Mode BackupMode `json:"mode,omitempty"`

	// Archive is "on" when continuous WAL archiving is enabled.
	// +optional
	Archive string `json:"archive,omitempty"`
}

// DisasterBackupSpec marks the cluster as a disaster-recovery follower.
type DisasterBackupSpec struct {
	Enabled bool `json:"enabled"`

	// NodeName is the pg_auto_failover node name of the remote site.
	// +kubebuilder:default=disaster
	// +optional
	NodeName string `json:"nodeName,omitempty"`
}

// ============================================================================
// Cluster
// ============================================================================

// PostgreSQLClusterSpec defines the desired state of a PostgreSQLCluster.
type PostgreSQLClusterSpec struct {
	// +kubebuilder:default=start
	// +optional
	Action Action `json:"action,omitempty"`

	// DeletePVC removes instance storage when the cluster is deleted.
	// +optional
	DeletePVC bool `json:"deletepvc,omitempty"`

	AutoFailover AutoFailoverSpec `json:"autofailover"`

	PostgreSQL PostgreSQLSpec `json:"postgresql"`

	// +optional
	Services []ServiceSpec `json:"services,omitempty"`

	// +optional
	Restore *RestoreSpec `json:"restore,omitempty"`

	// +optional
	S3 *S3Spec `json:"s3,omitempty"`

	// +optional
	Backup *BackupSpec `json:"backup,omitempty"`

	// +optional
	DisasterBackup *DisasterBackupSpec `json:"disasterBackup,omitempty"`
}

// DisasterNodeState is the replication position of one remote node.
type DisasterNodeState struct {
	LSN   string `json:"lsn"`
	State string `json:"state"`
}

// ArchiveStatus mirrors pg_stat_archiver on the primary.
type ArchiveStatus struct {
	LastArchivedWAL  string `json:"lastArchivedWAL,omitempty"`
	LastArchivedTime string `json:"lastArchivedTime,omitempty"`
}

// PostgreSQLClusterStatus defines the observed state of a PostgreSQLCluster.
type PostgreSQLClusterStatus struct {
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// AutoctlNodePassword is the generated password of the autoctl_node role.
	// +optional
	AutoctlNodePassword string `json:"autoctlNodePassword,omitempty"`

	// ReplicatorPassword is the generated password of pgautofailover_replicator.
	// +optional
	ReplicatorPassword string `json:"replicatorPassword,omitempty"`

	// +optional
	CreatePhase CreatePhase `json:"createPhase,omitempty"`

	// TimerLastRun is the local time of the last periodic correction pass.
	// +optional
	TimerLastRun string `json:"timerLastRun,omitempty"`

	// DisasterBackupStatus maps remote node names to their replication state.
	// +optional
	DisasterBackupStatus map[string]DisasterNodeState `json:"disasterBackupStatus,omitempty"`

	// +optional
	Archive *ArchiveStatus `json:"archive,omitempty"`

	// ServerCertSecret names the Secret holding the issued server certificate.
	// +optional
	ServerCertSecret string `json:"serverCertSecret,omitempty"`

	// +optional
	Phase Phase `json:"phase,omitempty"`

	// +optional
	ReadyInstances int32 `json:"readyInstances,omitempty"`

	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=pg
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Create",type="string",JSONPath=".status.createPhase"
// +kubebuilder:printcolumn:name="Action",type="string",JSONPath=".spec.action"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// PostgreSQLCluster is the Schema for the postgresqlclusters API.
type PostgreSQLCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PostgreSQLClusterSpec   `json:"spec,omitempty"`
	Status PostgreSQLClusterStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PostgreSQLClusterList contains a list of PostgreSQLCluster.
type PostgreSQLClusterList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []PostgreSQLCluster `json:"items"`
}

func init() {
	SchemeBuilder.Register(&PostgreSQLCluster{}, &PostgreSQLClusterList{})
}
