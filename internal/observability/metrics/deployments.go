package metrics

// DeploymentRecord counts a deployment record write.
func DeploymentRecord(source, status string) {
	if !enabled {
		return
	}
	deploymentRecordTotal.WithLabelValues(source, status).Inc()
}

// DeploymentLookup counts a deployment read (get, get_future, list).
func DeploymentLookup(operation, status string) {
	if !enabled {
		return
	}
	deploymentLookupTotal.WithLabelValues(operation, status).Inc()
}

// DeploymentVerify counts a verification status update.
func DeploymentVerify(status string) {
	if !enabled {
		return
	}
	deploymentVerifyTotal.WithLabelValues(status).Inc()
}
