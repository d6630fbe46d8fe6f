package monitoring

import "time"

// SetClusterInfo sets the info-style gauge for a PostgreSQLCluster.
// Old phase labels are automatically cleaned up via DeletePartialMatch.
func SetClusterInfo(name, namespace, phase string) {
	clusterInfo.DeletePartialMatch(map[string]string{
		"name":      name,
		"namespace": namespace,
	})
	clusterInfo.WithLabelValues(name, namespace, phase).Set(1)
}

// SetClusterInstances sets the declared instance count of one role.
func SetClusterInstances(cluster, namespace, role string, count int32) {
	clusterInstances.WithLabelValues(cluster, namespace, role).Set(float64(count))
}

// DeleteCluster drops every series of a deleted cluster.
func DeleteCluster(name, namespace string) {
	clusterInfo.DeletePartialMatch(map[string]string{"name": name, "namespace": namespace})
	clusterInstances.DeletePartialMatch(map[string]string{"cluster": name, "namespace": namespace})
}

// RecordRemoteCommand records one command run on an instance. ok is false
// when the command could not be delivered; the command's own outcome is not
// known at this level.
func RecordRemoteCommand(backend string, ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "error"
	}
	remoteCommandTotal.WithLabelValues(backend, result).Inc()
	remoteCommandDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordCorrection records the result of one periodic correction step.
func RecordCorrection(correction string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	correctionTotal.WithLabelValues(correction, result).Inc()
}

// RecordSpecChange records one applied spec change.
func RecordSpecChange(field string) {
	specChangesTotal.WithLabelValues(field).Inc()
}

// RecordWebhookRequest records a webhook admission request's result and duration.
func RecordWebhookRequest(operation, resource string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	webhookRequestTotal.WithLabelValues(operation, resource, result).Inc()
	webhookRequestDuration.WithLabelValues(operation, resource).Observe(duration.Seconds())
}
