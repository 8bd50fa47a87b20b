// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sdk

import "fmt"

// Group is the state of a scaling group as read from the fleet backend. It is
// always the result of a fresh read and is never cached across control loop
// cycles.
type Group struct {

	// Name is the backend identifier of the group.
	Name string

	// Desired is the target worker-pool size requested from the backend.
	Desired int

	// Min and Max are the capacity bounds configured on the group.
	Min int
	Max int
}

// Validate checks the group satisfies Min <= Desired <= Max.
func (g Group) Validate() error {
	if g.Min < 0 {
		return fmt.Errorf("group %q has negative min capacity %d", g.Name, g.Min)
	}
	if g.Min > g.Max {
		return fmt.Errorf("group %q has min capacity %d above max capacity %d", g.Name, g.Min, g.Max)
	}
	if g.Desired < g.Min || g.Desired > g.Max {
		return fmt.Errorf("group %q desired capacity %d outside bounds [%d, %d]",
			g.Name, g.Desired, g.Min, g.Max)
	}
	return nil
}

// Saturated reports whether the group's desired capacity already equals its
// maximum.
func (g Group) Saturated() bool { return g.Desired >= g.Max }
