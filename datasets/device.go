package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// DeviceCPU is the built-in device: tensors stay as host buffers and are
// returned synchronously.
const DeviceCPU = "cpu"

// Placer moves a host tensor to a compute device. Accelerator placers are
// expected to transfer asynchronously from shared (pinned) host memory.
type Placer interface {
	Place(t *tensors.Tensor) (*tensors.Tensor, error)
}

// PlacerFunc adapts a function to Placer.
type PlacerFunc func(t *tensors.Tensor) (*tensors.Tensor, error)

// Place implements Placer.
func (f PlacerFunc) Place(t *tensors.Tensor) (*tensors.Tensor, error) {
	return f(t)
}

type hostPlacer struct{}

func (hostPlacer) Place(t *tensors.Tensor) (*tensors.Tensor, error) {
	return t, nil
}
