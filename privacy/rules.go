package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/strata/schema/field"
)

// Viewer represents the authenticated user making a request.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier, or an empty
	// string.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context.
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the
// specified role, and skips otherwise.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of
// the specified roles, and skips otherwise.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows writes when the owner property of
// every written entity is the viewer. Selects are skipped.
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner(postAuthor),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(owner *field.Accessor) Rule {
	return OnOperation(RuleFunc(func(ctx context.Context, o *Operation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		targets := o.Targets()
		if len(targets) == 0 {
			return Skip
		}
		for _, e := range targets {
			if stringOf(owner.Get(e)) != viewer.GetID() {
				return Skip
			}
		}
		return Allow
	}), OpMutation)
}

// TenantRule returns a rule that allows writes when the tenant property of
// every written entity is the tenant of the viewer, and denies them
// otherwise. Viewers without tenant are skipped.
func TenantRule(tenant *field.Accessor) Rule {
	return OnOperation(RuleFunc(func(ctx context.Context, o *Operation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		for _, e := range o.Targets() {
			if got := stringOf(tenant.Get(e)); got != viewer.GetTenantID() {
				return Denyf("privacy: tenant mismatch %q", got)
			}
		}
		return Allow
	}), OpMutation)
}

// TenantQueryRule returns a rule that denies selects if no viewer or
// tenant is present.
func TenantQueryRule() Rule {
	return OnOperation(ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		return Skip
	}), OpSelect)
}

func stringOf(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
