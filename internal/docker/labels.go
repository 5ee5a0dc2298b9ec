package docker

import "fmt"

// Label keys used for Discernus worker containers
const (
	LabelProject      = "discernus.project"
	LabelInstanceName = "discernus.instance.name"
	LabelTaskID       = "discernus.task.id"
	LabelTaskType     = "discernus.task.type"
	LabelComponent    = "discernus.component"
)

// BuildLabels creates the standard label set for a Discernus worker container.
// Labels let operators find and clean up containers belonging to an instance
// without tracking container IDs.
func BuildLabels(instanceName, taskID, taskType string) map[string]string {
	return map[string]string{
		LabelProject:      "true",
		LabelInstanceName: instanceName,
		LabelTaskID:       taskID,
		LabelTaskType:     taskType,
		LabelComponent:    "worker",
	}
}

// WorkerContainerName returns the container name for a worker executing a task.
// Stream IDs contain '-' which is legal in container names.
func WorkerContainerName(instanceName, taskType, taskID string) string {
	return fmt.Sprintf("discernus-%s-%s-%s", instanceName, taskType, taskID)
}
