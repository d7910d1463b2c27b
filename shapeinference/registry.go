// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
)

// Convolution-family layer types registered by default.
const (
	LayerConvolution           = "Convolution"
	LayerBinaryConvolution     = "BinaryConvolution"
	LayerDeformableConvolution = "DeformableConvolution"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Impl)
)

func init() {
	Register(LayerConvolution, NewConvShapeProp(LayerConvolution, 1, 3))
	Register(LayerBinaryConvolution, NewConvShapeProp(LayerBinaryConvolution, 1, 3))
	// Deformable convolutions take the offsets as a second input.
	Register(LayerDeformableConvolution, NewConvShapeProp(LayerDeformableConvolution, 2, 4))
}

// Register the shape inference for the given layer type.
//
// To be safe, call Register during initialization of a package. It panics if layerType is empty or
// if it was already registered.
func Register(layerType string, impl Impl) {
	if layerType == "" || impl == nil {
		exceptions.Panicf("shapeinference.Register(%q, %v): layer type and implementation must be given", layerType, impl)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, found := registry[layerType]; found {
		exceptions.Panicf("shapeinference.Register(%q): layer type already registered", layerType)
	}
	registry[layerType] = impl
}

// Get returns the shape inference registered for layerType.
func Get(layerType string) (impl Impl, found bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	impl, found = registry[layerType]
	return
}

// LayerTypes returns the sorted names of the registered layer types.
func LayerTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
