// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := MakeSet[int](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeSet[string]()
	s2.Insert("conv2", "conv1", "conv2")
	assert.Len(t, s2, 2)
	assert.True(t, s2.Has("conv1"))
	assert.Equal(t, []string{"conv1", "conv2"}, SortedKeys(s2))

	delete(s, 7)
	assert.Len(t, s, 1)
	assert.Equal(t, []int{3}, SortedKeys(s))
}
