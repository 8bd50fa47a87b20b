// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package uuid

import (
	"fmt"

	uuid "github.com/hashicorp/go-uuid"
)

// Generate returns a random UUID. It panics if the system random source
// cannot be read.
func Generate() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return id
}
