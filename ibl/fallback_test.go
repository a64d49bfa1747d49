//go:build !opencl

package ibl_test

import (
	"testing"

	"drumkit/ibl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineFallsBackToSoftware(t *testing.T) {
	pipeline, err := ibl.NewPipeline(ibl.ImplOpenCl, ibl.DeviceTypeGPU, testSettings())
	require.NoError(t, err)
	defer pipeline.Release()

	assert.Equal(t, ibl.ImplSoftware, pipeline.Impl)
}
