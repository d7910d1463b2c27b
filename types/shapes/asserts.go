// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/pkg/errors"
)

// CheckMinRank checks that the shape has at least the given rank.
//
// It returns an error if the rank is smaller.
func (s Shape) CheckMinRank(rank int) error {
	if s.Rank() < rank {
		return errors.Errorf("shape %s has rank %d, wanted at least %d", s, s.Rank(), rank)
	}
	return nil
}
