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
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

var validSelectors = map[ServiceSelector]bool{
	ServiceSelectorAutoFailover:    true,
	ServiceSelectorPrimary:         true,
	ServiceSelectorStandby:         true,
	ServiceSelectorReadOnly:        true,
	ServiceSelectorStandbyReadOnly: true,
}

// ValidateCreate checks the preconditions of a first-time cluster bring-up.
// A non-nil result is permanent: retrying with the same spec cannot succeed.
func (s *PostgreSQLClusterSpec) ValidateCreate() error {
	var errs field.ErrorList
	specPath := field.NewPath("spec")
	afPath := specPath.Child("autofailover", "machines")
	rwPath := specPath.Child("postgresql", "readwriteinstance")
	roPath := specPath.Child("postgresql", "readonlyinstance")

	if s.MachineMode() {
		switch len(s.AutoFailover.Machines) {
		case 0:
			errs = append(errs, field.Required(afPath, "autofailover machines not set"))
		case 1:
		default:
			errs = append(errs, field.TooMany(afPath, len(s.AutoFailover.Machines), 1))
		}
		if len(s.PostgreSQL.ReadWriteInstance.Machines) == 0 {
			errs = append(errs, field.Required(rwPath.Child("machines"), "readwrite machines not set"))
		}
		errs = append(errs, validateMachines(afPath, s.AutoFailover.Machines)...)
		errs = append(errs, validateMachines(rwPath.Child("machines"), s.PostgreSQL.ReadWriteInstance.Machines)...)
		errs = append(errs, validateMachines(roPath.Child("machines"), s.PostgreSQL.ReadOnlyInstance.Machines)...)
	}

	if s.Action == ActionStop {
		errs = append(errs, field.Forbidden(specPath.Child("action"), "can't set stop at init cluster"))
	}
	if r := s.PostgreSQL.ReadWriteInstance.Replicas; r != nil && *r < 1 {
		errs = append(errs, field.Invalid(rwPath.Child("replicas"), *r, "readwrite replicas must be at least one"))
	}
	if r := s.PostgreSQL.ReadOnlyInstance.Replicas; r != nil && *r < 0 {
		errs = append(errs, field.Invalid(roPath.Child("replicas"), *r, "readonly replicas must not be negative"))
	}
	errs = append(errs, s.validateServices(specPath.Child("services"))...)

	return errs.ToAggregate()
}

// ValidateUpdate checks a spec change against the previously accepted spec.
func (s *PostgreSQLClusterSpec) ValidateUpdate(old *PostgreSQLClusterSpec) error {
	var errs field.ErrorList
	specPath := field.NewPath("spec")

	if s.MachineMode() != old.MachineMode() {
		errs = append(errs, field.Forbidden(specPath, "switching between machine and pod mode is not supported"))
	}
	if len(old.AutoFailover.Machines) > 0 && len(s.AutoFailover.Machines) != 1 {
		errs = append(errs, field.Invalid(specPath.Child("autofailover", "machines"),
			s.AutoFailover.Machines, "autofailover requires exactly one machine"))
	}
	if r := s.PostgreSQL.ReadWriteInstance.Replicas; r != nil && *r < 1 {
		errs = append(errs, field.Invalid(specPath.Child("postgresql", "readwriteinstance", "replicas"),
			*r, "readwrite replicas must be at least one"))
	}
	errs = append(errs, s.validateServices(specPath.Child("services"))...)

	return errs.ToAggregate()
}

func (s *PostgreSQLClusterSpec) validateServices(path *field.Path) field.ErrorList {
	var errs field.ErrorList
	for i, svc := range s.Services {
		if !validSelectors[svc.Selector] {
			errs = append(errs, field.NotSupported(path.Index(i).Child("selector"), svc.Selector,
				[]ServiceSelector{
					ServiceSelectorAutoFailover, ServiceSelectorPrimary, ServiceSelectorStandby,
					ServiceSelectorReadOnly, ServiceSelectorStandbyReadOnly,
				}))
		}
	}
	return errs
}

func validateMachines(path *field.Path, machines []string) field.ErrorList {
	var errs field.ErrorList
	for i, m := range machines {
		if strings.Count(m, ":") < 3 {
			errs = append(errs, field.Invalid(path.Index(i), "<redacted>", "expected user:password:host:port"))
		}
	}
	return errs
}
