//go:build !opencl

package ibl

import "drumkit/liberr"

// NewClPipeline always fails when built without the opencl tag.
func NewClPipeline(device DeviceType, s Settings) (*Pipeline, error) {
	return nil, liberr.Bakef("ibl: opencl support not compiled in, rebuild with -tags opencl")
}
