// Package access enforces the collection access policy: every storage
// operation names a collection that must be declared in the manifest, and
// restricted collections additionally require the privileged role.
//
// The caller's role is established once, from a signed capability token
// (see token.go), and the resulting Policy is checked synchronously before
// every gateway operation. A denied call performs zero storage work.
package access

import (
	"errors"
	"fmt"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

// Role of the current caller.
type Role string

const (
	// RoleStandard can reach every unrestricted collection.
	RoleStandard Role = "standard"

	// RolePrivileged additionally unlocks restricted collections.
	RolePrivileged Role = "privileged"
)

// ErrUnknownCollection reports a request against a collection the
// manifest does not declare.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrForbidden reports a restricted collection requested without the
// privileged role. The call fails; records are never silently filtered.
var ErrForbidden = errors.New("forbidden: restricted collection")

// Policy validates collection access for one caller role.
type Policy struct {
	reg  *schema.Registry
	role Role
}

// NewPolicy builds a policy over the registry for the given role.
func NewPolicy(reg *schema.Registry, role Role) *Policy {
	return &Policy{reg: reg, role: role}
}

// Role returns the caller role the policy was built with.
func (p *Policy) Role() Role {
	return p.role
}

// Validate fails with ErrUnknownCollection for undeclared collections and
// ErrForbidden for restricted collections outside the privileged role.
func (p *Policy) Validate(collection string) error {
	if !p.reg.Has(collection) {
		return fmt.Errorf("collection %q: %w", collection, ErrUnknownCollection)
	}
	if p.reg.Restricted(collection) && p.role != RolePrivileged {
		return fmt.Errorf("collection %q: %w", collection, ErrForbidden)
	}
	return nil
}
