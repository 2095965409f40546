// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostFansOutInRegistrationOrder(t *testing.T) {
	b := New()
	var order []string
	b.Register("first", func(Event) { order = append(order, "first") })
	b.Register("second", func(Event) { order = append(order, "second") })

	b.Post(Event{Kind: Launch})
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRemoveStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	h := b.Register("sub", func(Event) { calls++ })
	b.Post(Event{Kind: Launch})
	require.True(t, b.Remove(h))
	b.Post(Event{Kind: Launch})
	require.Equal(t, 1, calls)
}

func TestReentrantRegisterDuringDispatchDoesNotSeeCurrentEvent(t *testing.T) {
	b := New()
	var secondCalls int
	b.Register("first", func(Event) {
		b.Register("second", func(Event) { secondCalls++ })
	})

	b.Post(Event{Kind: Launch})
	require.Equal(t, 0, secondCalls, "newly registered subscriber must not see the event already in flight")

	b.Post(Event{Kind: Launch})
	require.Equal(t, 1, secondCalls)
}

func TestReentrantRemoveDuringDispatchIsSafe(t *testing.T) {
	b := New()
	var h Handle
	h = b.Register("self-removing", func(Event) {
		b.Remove(h)
	})
	require.NotPanics(t, func() {
		b.Post(Event{Kind: Launch})
		b.Post(Event{Kind: Launch})
	})
}
