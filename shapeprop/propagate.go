// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeprop propagates shapes through a whole network, calling the per-layer shape inference
// of package shapeinference for every layer in topological order.
//
// Layers that don't depend on each other are inferred in parallel, and the first failure aborts the
// propagation. Example:
//
//	net := must.M1(shapeprop.LoadNetwork("resnet_stem.yaml"))
//	result, err := shapeprop.Propagate(ctx, net)
//	if err != nil { ... }
//	fmt.Println(result.Shapes["conv1"][0])
package shapeprop

import (
	"context"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/convshape/internal/workerspool"
	"github.com/gomlx/convshape/shapeinference"
	"github.com/gomlx/convshape/types"
	"github.com/gomlx/convshape/types/shapes"
	"github.com/gomlx/convshape/types/xsync"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Result of a shape propagation.
type Result struct {
	// Shapes holds the output shapes of each layer, by layer name.
	Shapes map[string][]shapes.Shape

	// Order in which the layers were inferred. Layers in the same wave (independent of each other)
	// are sorted by name.
	Order []string

	// Waves is the number of groups of independent layers that were inferred in parallel.
	Waves int
}

// Lookup returns the shape referred to by ref ("name" or "name:port"), which can be a network input
// or the output of a layer already inferred.
func (r *Result) Lookup(net *Network, ref string) (shapes.Shape, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return shapes.Invalid(), err
	}
	return lookup(net, r, parsed)
}

// Option configures Propagate.
type Option func(*options)

type options struct {
	parallelism int
}

// WithParallelism sets the maximum number of layers inferred in parallel.
// 0 disables parallelism, and -1 means unlimited. The default is runtime.NumCPU().
func WithParallelism(parallelism int) Option {
	return func(o *options) { o.parallelism = parallelism }
}

// reference to the output of a network input or of a layer.
type reference struct {
	name string
	port int
}

func parseReference(ref string) (reference, error) {
	name, port, err := SplitReference(ref)
	return reference{name: name, port: port}, err
}

// SplitReference splits a layer input reference, "name" or "name:port", in its name and output port.
// The port defaults to 0.
func SplitReference(ref string) (name string, port int, err error) {
	name, portStr, hasPort := strings.Cut(ref, ":")
	if name == "" {
		return "", 0, errors.Errorf("empty name in reference %q", ref)
	}
	if !hasPort {
		return name, 0, nil
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port < 0 {
		return "", 0, errors.Errorf("invalid port in reference %q", ref)
	}
	return name, port, nil
}

// Propagate infers the output shapes of every layer of net.
//
// It returns an error if the network is malformed (duplicate names, unknown layer types, dangling references
// or cycles), if the shape inference of any layer fails, or if ctx is cancelled. Errors from the
// shape inference of a layer keep their type (see shapeinference.IsConfigurationError and
// shapeinference.IsShapeComputationError) and are annotated with the layer name.
func Propagate(ctx context.Context, net *Network, opts ...Option) (*Result, error) {
	o := &options{parallelism: runtime.NumCPU()}
	for _, opt := range opts {
		opt(o)
	}
	waves, refs, err := sortLayers(net)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Shapes: make(map[string][]shapes.Shape, len(net.Layers)),
		Waves:  len(waves),
	}
	pool := workerspool.NewWithParallelism(o.parallelism)
	klog.V(1).Infof("shapeprop: %d layer(s) in %d wave(s), parallelism %d", len(net.Layers), len(waves), pool.MaxParallelism())
	for waveIdx, wave := range waves {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "shape propagation interrupted before wave %d", waveIdx)
		}
		klog.V(1).Infof("shapeprop: wave %d with %d layer(s)", waveIdx, len(wave))
		outputs := make([][]shapes.Shape, len(wave))
		failure := xsync.NewLatchWithValue[error]()
		tasks := make([]func(), len(wave))
		for ii, layer := range wave {
			tasks[ii] = func() {
				if failure.Test() || ctx.Err() != nil {
					return
				}
				layerOutputs, err := inferLayer(net, result, layer, refs[layer])
				if err != nil {
					failure.Trigger(err)
					return
				}
				outputs[ii] = layerOutputs
			}
		}
		pool.RunAll(tasks...)
		if failure.Test() {
			return nil, failure.Wait()
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "shape propagation interrupted in wave %d", waveIdx)
		}
		for ii, layer := range wave {
			result.Shapes[layer.Name] = outputs[ii]
			result.Order = append(result.Order, layer.Name)
		}
	}
	return result, nil
}

// inferLayer runs the shape inference of one layer. It only reads result, which is not modified while
// a wave is running.
func inferLayer(net *Network, result *Result, layer *Layer, inputRefs []reference) (outShapes []shapes.Shape, err error) {
	impl, _ := shapeinference.Get(layer.Type)
	inputs := make([]shapes.Shape, 0, len(inputRefs))
	for _, ref := range inputRefs {
		shape, err := lookup(net, result, ref)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %q", layer.Name)
		}
		inputs = append(inputs, shape)
	}
	if klog.V(2).Enabled() {
		klog.Infof("shapeprop: layer %q (%s) inputs=%v params=%v", layer.Name, layer.Type, inputs, layer.Params)
	}

	// Registered implementations may panic: convert it to an error for this layer.
	panicErr := exceptions.TryCatch[error](func() {
		outShapes, err = impl.InferShapes(inputs, layer.Params, layer.Blobs, nil)
	})
	if panicErr != nil {
		return nil, errors.WithMessagef(panicErr, "layer %q (%s) panicked", layer.Name, layer.Type)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q", layer.Name)
	}
	klog.V(1).Infof("shapeprop: layer %q (%s): %v -> %v", layer.Name, layer.Type, inputs, outShapes)
	return outShapes, nil
}

func lookup(net *Network, result *Result, ref reference) (shapes.Shape, error) {
	if shape, found := net.Inputs[ref.name]; found {
		if ref.port != 0 {
			return shapes.Invalid(), errors.Errorf("network input %q has only port 0, got port %d", ref.name, ref.port)
		}
		return shape, nil
	}
	outputs := result.Shapes[ref.name]
	if ref.port >= len(outputs) {
		return shapes.Invalid(), errors.Errorf("layer %q has %d output(s), port %d requested", ref.name, len(outputs), ref.port)
	}
	return outputs[ref.port], nil
}

// sortLayers validates the network and groups its layers in waves: each wave only depends on network inputs
// and on layers of previous waves. It also returns the parsed input references of each layer.
func sortLayers(net *Network) (waves [][]*Layer, refs map[*Layer][]reference, err error) {
	if net == nil {
		return nil, nil, errors.New("nil network")
	}
	layersByName := make(map[string]*Layer, len(net.Layers))
	for _, layer := range net.Layers {
		switch {
		case layer == nil:
			return nil, nil, errors.New("nil layer in network")
		case layer.Name == "":
			return nil, nil, errors.Errorf("layer of type %q has no name", layer.Type)
		case layersByName[layer.Name] != nil:
			return nil, nil, errors.Errorf("duplicate layer name %q", layer.Name)
		}
		if _, found := net.Inputs[layer.Name]; found {
			return nil, nil, errors.Errorf("layer name %q is also the name of a network input", layer.Name)
		}
		if _, found := shapeinference.Get(layer.Type); !found {
			return nil, nil, errors.Errorf("layer %q has unsupported type %q, supported types are %v",
				layer.Name, layer.Type, shapeinference.LayerTypes())
		}
		layersByName[layer.Name] = layer
	}

	refs = make(map[*Layer][]reference, len(net.Layers))
	dependencies := make(map[*Layer]types.Set[string], len(net.Layers))
	for _, layer := range net.Layers {
		deps := types.MakeSet[string]()
		for _, refStr := range layer.Inputs {
			ref, err := parseReference(refStr)
			if err != nil {
				return nil, nil, errors.WithMessagef(err, "layer %q", layer.Name)
			}
			if _, found := net.Inputs[ref.name]; !found {
				if layersByName[ref.name] == nil {
					return nil, nil, errors.Errorf("layer %q input %q refers to an unknown layer or network input",
						layer.Name, refStr)
				}
				deps.Insert(ref.name)
			}
			refs[layer] = append(refs[layer], ref)
		}
		dependencies[layer] = deps
	}

	// Kahn's algorithm, one wave at a time.
	done := types.MakeSet[string](len(net.Layers))
	for len(done) < len(net.Layers) {
		var wave []*Layer
		for _, layer := range net.Layers {
			if done.Has(layer.Name) {
				continue
			}
			ready := true
			for dep := range dependencies[layer] {
				if !done.Has(dep) {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, layer)
			}
		}
		if len(wave) == 0 {
			pending := types.MakeSet[string]()
			for _, layer := range net.Layers {
				if !done.Has(layer.Name) {
					pending.Insert(layer.Name)
				}
			}
			return nil, nil, errors.Errorf("network has a cycle among layers %v", types.SortedKeys(pending))
		}
		slices.SortFunc(wave, func(a, b *Layer) int { return strings.Compare(a.Name, b.Name) })
		for _, layer := range wave {
			done.Insert(layer.Name)
		}
		waves = append(waves, wave)
	}
	return waves, refs, nil
}
