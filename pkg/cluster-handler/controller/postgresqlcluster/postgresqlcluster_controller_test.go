package postgresqlcluster

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/testutil"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
	"github.com/radondb/postgres-operator/pkg/util/status"
)

func TestReconcile_NotFound(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	res, err := e.reconcile(t)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if diff := cmp.Diff(time.Duration(0), res.RequeueAfter); diff != "" {
		t.Errorf("RequeueAfter mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_AddsFinalizer(t *testing.T) {
	t.Parallel()

	c := newCluster()
	c.Finalizers = nil
	e := newEnv(t, nil, c)

	if _, err := e.reconcile(t); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !controllerutil.ContainsFinalizer(e.cluster(t), finalizerName) {
		t.Error("finalizer not added")
	}
	if got := e.client.Created(); len(got) != 0 {
		t.Errorf("created %v before the finalizer was stored", got)
	}
}

func TestReconcile_CreatesCluster(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil, newCluster())
	scriptHealthy(e.script)

	res, err := e.reconcile(t)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.RequeueAfter != time.Minute {
		t.Errorf("RequeueAfter = %v, want %v", res.RequeueAfter, time.Minute)
	}

	wantCreated := []string{
		"Service/pg-rw",
		"Service/pg-autofailover-0",
		"StatefulSet/pg-autofailover-0",
		"Service/pg-postgresql-readwriteinstance-0",
		"StatefulSet/pg-postgresql-readwriteinstance-0",
		"Service/pg-postgresql-readwriteinstance-1",
		"StatefulSet/pg-postgresql-readwriteinstance-1",
		"Service/pg-postgresql-readonlyinstance-0",
		"StatefulSet/pg-postgresql-readonlyinstance-0",
	}
	if diff := cmp.Diff(wantCreated, e.client.Created()); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	got := e.cluster(t)
	if got.Status.CreatePhase != pgv1alpha1.CreatePhaseFinished {
		t.Errorf("createPhase = %q, want %q", got.Status.CreatePhase, pgv1alpha1.CreatePhaseFinished)
	}
	if len(got.Status.AutoctlNodePassword) != passwordLength || len(got.Status.ReplicatorPassword) != passwordLength {
		t.Errorf("passwords = %q, %q, want %d characters each",
			got.Status.AutoctlNodePassword, got.Status.ReplicatorPassword, passwordLength)
	}
	if got.Status.Phase != pgv1alpha1.PhaseProgressing {
		t.Errorf("phase = %q, want %q", got.Status.Phase, pgv1alpha1.PhaseProgressing)
	}
	applied, err := lastApplied(got)
	if err != nil || applied == nil {
		t.Fatalf("lastApplied() = %v, %v, want the current spec", applied, err)
	}
	if !equality.Semantic.DeepEqual(got.Spec, *applied) {
		t.Errorf("last applied spec = %+v, want %+v", *applied, got.Spec)
	}

	users := []string{
		pgtools.Query(pgtools.CreateUser("root", "rootpw", true)),
		pgtools.Query(pgtools.CreateUser("app", "apppw", false)),
	}
	for _, cmd := range users {
		if !slices.Contains(e.script.Commands(rw0Pod), cmd) {
			t.Errorf("primary did not run %q", cmd)
		}
	}

	wantEvents := []string{
		"Normal Creating Creating PostgreSQL cluster",
		"Normal Created PostgreSQL cluster created",
		"Normal PhaseChange Transitioned from '' to 'Progressing'",
	}
	if diff := cmp.Diff(wantEvents, e.events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_ResumesCreation(t *testing.T) {
	t.Parallel()

	c := newCluster()
	c.Status = pgv1alpha1.PostgreSQLClusterStatus{
		AutoctlNodePassword: "nodepw",
		ReplicatorPassword:  "replpw",
		CreatePhase:         pgv1alpha1.CreatePhaseAddReadOnly,
	}
	e := newEnv(t, nil, c)
	scriptHealthy(e.script)

	if _, err := e.reconcile(t); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	want := []string{
		"Service/pg-postgresql-readonlyinstance-0",
		"StatefulSet/pg-postgresql-readonlyinstance-0",
	}
	if diff := cmp.Diff(want, e.client.Created()); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}
	got := e.cluster(t)
	if got.Status.AutoctlNodePassword != "nodepw" || got.Status.ReplicatorPassword != "replpw" {
		t.Errorf("passwords regenerated: %q, %q", got.Status.AutoctlNodePassword, got.Status.ReplicatorPassword)
	}
	if got.Status.CreatePhase != pgv1alpha1.CreatePhaseFinished {
		t.Errorf("createPhase = %q, want %q", got.Status.CreatePhase, pgv1alpha1.CreatePhaseFinished)
	}
}

func TestReconcile_CreationFailure(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate     func(*pgv1alpha1.PostgreSQLCluster)
		cfg        *testutil.FailureConfig
		wantFatal  bool
		wantReason string
		wantPhase  pgv1alpha1.CreatePhase
	}{
		"stopped at creation": {
			mutate:     func(c *pgv1alpha1.PostgreSQLCluster) { c.Spec.Action = pgv1alpha1.ActionStop },
			wantFatal:  true,
			wantReason: status.ReasonInvalidSpec,
		},
		"monitor workload rejected": {
			cfg: &testutil.FailureConfig{
				OnCreate: testutil.FailOnObjectName("pg-autofailover-0", testutil.ErrInjected),
			},
			wantReason: status.ReasonReconcileFail,
			wantPhase:  pgv1alpha1.CreatePhaseAddAutoFailover,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := newCluster()
			if tc.mutate != nil {
				tc.mutate(c)
			}
			e := newEnv(t, tc.cfg, c)
			scriptHealthy(e.script)

			_, err := e.reconcile(t)
			if err == nil {
				t.Fatal("Reconcile() error = nil, want an error")
			}
			if got := connection.IsFatal(err); got != tc.wantFatal {
				t.Errorf("IsFatal() = %v, want %v (err %v)", got, tc.wantFatal, err)
			}

			got := e.cluster(t)
			if got.Status.CreatePhase != tc.wantPhase {
				t.Errorf("createPhase = %q, want %q", got.Status.CreatePhase, tc.wantPhase)
			}
			cond := apimeta.FindStatusCondition(got.Status.Conditions, status.ConditionReady)
			if cond == nil || cond.Status != metav1.ConditionFalse || cond.Reason != tc.wantReason {
				t.Errorf("Ready condition = %+v, want False/%s", cond, tc.wantReason)
			}
		})
	}
}

func TestReconcile_Delete(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		deletePVC   bool
		wantDrops   int
		wantDeleted []string
	}{
		"keep storage": {
			wantDeleted: []string{"Service/pg-rw"},
		},
		"delete storage": {
			deletePVC: true,
			wantDrops: 4,
			wantDeleted: []string{
				"StatefulSet/pg-postgresql-readonlyinstance-0",
				"StatefulSet/pg-postgresql-readwriteinstance-0",
				"StatefulSet/pg-postgresql-readwriteinstance-1",
				"StatefulSet/pg-autofailover-0",
				"Service/pg-rw",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := createdCluster(t)
			c.Spec.DeletePVC = tc.deletePVC
			now := metav1.NewTime(testNow)
			c.DeletionTimestamp = &now

			objs := []client.Object{c, &corev1.Service{
				ObjectMeta: metav1.ObjectMeta{
					Name: "pg-rw", Namespace: "db",
					Labels: metadata.UserServiceLabels("pg", "db"),
				},
			}}
			for _, sts := range []string{
				"pg-autofailover-0",
				"pg-postgresql-readwriteinstance-0",
				"pg-postgresql-readwriteinstance-1",
				"pg-postgresql-readonlyinstance-0",
			} {
				objs = append(objs, statefulSet(sts, 1))
			}
			e := newEnv(t, nil, objs...)

			if _, err := e.reconcile(t); err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if got := e.script.Count(pgtools.Drop()); got != tc.wantDrops {
				t.Errorf("drops = %d, want %d", got, tc.wantDrops)
			}

			var deleted []string
			for _, d := range e.client.Deleted() {
				if d == "Service/pg-rw" || strings.HasPrefix(d, "StatefulSet/") {
					deleted = append(deleted, d)
				}
			}
			if diff := cmp.Diff(tc.wantDeleted, deleted); diff != "" {
				t.Errorf("deleted mismatch (-want +got):\n%s", diff)
			}

			err := e.client.Get(t.Context(), types.NamespacedName{Name: "pg", Namespace: "db"}, &pgv1alpha1.PostgreSQLCluster{})
			if !apierrors.IsNotFound(err) {
				t.Errorf("cluster still present after finalizer removal: %v", err)
			}
		})
	}
}
