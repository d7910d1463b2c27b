// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"fmt"
	"io"

	"github.com/gomlx/convshape/types/shapes"
	"github.com/pkg/errors"
)

// ConfigurationError is returned when the layer parameters are malformed, missing, or don't match the
// rank of the input. It is detected before any shape arithmetic happens.
type ConfigurationError struct {
	// LayerType is the type of the layer being inferred, if known.
	LayerType string

	// Input is the shape of the first input, or an invalid shape if there was none.
	Input shapes.Shape

	err error
}

// ShapeComputationError is returned when well-formed parameters, applied to the given input, yield an output
// axis without a strictly positive dimension.
type ShapeComputationError struct {
	// LayerType is the type of the layer being inferred, if known.
	LayerType string

	// Input is the offending input shape.
	Input shapes.Shape

	err error
}

func configErrorf(input shapes.Shape, format string, args ...any) error {
	return &ConfigurationError{Input: input, err: errors.Errorf(format, args...)}
}

func shapeErrorf(input shapes.Shape, format string, args ...any) error {
	return &ShapeComputationError{Input: input, err: errors.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return formatError("configuration error", e.LayerType, e.Input, e.err)
}

// Unwrap returns the underlying error, which carries the stack trace.
func (e *ConfigurationError) Unwrap() error { return e.err }

// Format implements fmt.Formatter: "%+v" includes the stack trace of where the error was created.
func (e *ConfigurationError) Format(s fmt.State, verb rune) { formatVerbose(s, verb, e.Error(), e.err) }

// Error implements the error interface.
func (e *ShapeComputationError) Error() string {
	return formatError("shape computation error", e.LayerType, e.Input, e.err)
}

// Unwrap returns the underlying error, which carries the stack trace.
func (e *ShapeComputationError) Unwrap() error { return e.err }

// Format implements fmt.Formatter: "%+v" includes the stack trace of where the error was created.
func (e *ShapeComputationError) Format(s fmt.State, verb rune) {
	formatVerbose(s, verb, e.Error(), e.err)
}

func formatError(kind, layerType string, input shapes.Shape, err error) string {
	msg := kind
	if layerType != "" {
		msg = fmt.Sprintf("%s in %s layer", kind, layerType)
	}
	if input.Ok() {
		return fmt.Sprintf("%s: %s (input shape %s)", msg, err.Error(), input)
	}
	return fmt.Sprintf("%s: %s", msg, err.Error())
}

// stackTracer is implemented by the errors created by github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func formatVerbose(s fmt.State, verb rune, msg string, err error) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, msg)
			if tracer, ok := err.(stackTracer); ok {
				_, _ = fmt.Fprintf(s, "%+v", tracer.StackTrace())
			}
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, msg)
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", msg)
	}
}

// withLayerType sets the LayerType of the errors returned by this package, if not set yet.
func withLayerType(err error, layerType string) error {
	var configErr *ConfigurationError
	if errors.As(err, &configErr) && configErr.LayerType == "" {
		configErr.LayerType = layerType
	}
	var shapeErr *ShapeComputationError
	if errors.As(err, &shapeErr) && shapeErr.LayerType == "" {
		shapeErr.LayerType = layerType
	}
	return err
}

// IsConfigurationError returns whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}

// IsShapeComputationError returns whether err is (or wraps) a ShapeComputationError.
func IsShapeComputationError(err error) bool {
	var shapeErr *ShapeComputationError
	return errors.As(err, &shapeErr)
}
