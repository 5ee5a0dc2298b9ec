package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildLabels(t *testing.T) {
	labels := BuildLabels("prod", "1731000000000-0", "analysis")

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, "prod", labels[LabelInstanceName])
	assert.Equal(t, "1731000000000-0", labels[LabelTaskID])
	assert.Equal(t, "analysis", labels[LabelTaskType])
	assert.Equal(t, "worker", labels[LabelComponent])
}

func TestWorkerContainerName(t *testing.T) {
	name := WorkerContainerName("prod", "analysis", "1731000000000-0")
	assert.Equal(t, "discernus-prod-analysis-1731000000000-0", name)
}
