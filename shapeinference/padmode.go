// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

// PadMode selects how the borders of the spatial axes are handled, and with it the formula used to
// compute the output dimensions of a convolution.
//
// Its string representation (the value of the "auto_pad" parameter) is the snake-case name without
// the "Pad" prefix: "explicit", "valid", "same_upper" and "same_lower".
type PadMode int

//go:generate go tool enumer -type=PadMode -trimprefix=Pad -transform=snake -output=gen_padmode_enumer.go padmode.go

const (
	// PadExplicit uses the "pads_begin" and "pads_end" parameters verbatim.
	PadExplicit PadMode = iota

	// PadValid applies no padding: only positions where the (dilated) kernel fits entirely are computed.
	PadValid

	// PadSameUpper pads so that output = ceil(input / stride). Odd padding goes at the end.
	PadSameUpper

	// PadSameLower pads so that output = floor(input / stride). Odd padding goes at the beginning.
	PadSameLower
)

// ParsePadMode returns the PadMode named by autoPad.
//
// The match is case-sensitive, and anything that is not "valid", "same_upper" or "same_lower"
// (including the empty string) selects PadExplicit.
func ParsePadMode(autoPad string) PadMode {
	for _, mode := range PadModeValues() {
		if mode.String() == autoPad {
			return mode
		}
	}
	return PadExplicit
}
