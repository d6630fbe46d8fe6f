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

// Package v1alpha1 defines the API types for the PostgreSQL cluster operator.
//
// The single user-facing resource is PostgreSQLCluster: a replicated
// PostgreSQL deployment driven by a pg_auto_failover monitor. A cluster runs
// either on Kubernetes pods (one StatefulSet per instance) or on SSH-reachable
// machines (one docker-compose project per instance).
//
// # Instance Groups
//
//	PostgreSQLCluster
//	├── autofailover       (monitor, exactly one instance)
//	└── postgresql
//	    ├── readwriteinstance  (primary + synchronous standbys)
//	    └── readonlyinstance   (asynchronous or quorum-less replicas)
//
// # Versioning
//
// This is the v1alpha1 version, indicating the API is in early development
// and may change in backward-incompatible ways.
package v1alpha1
