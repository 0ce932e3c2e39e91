// Package privacy provides authorization rules evaluated before persister
// operations reach the database.
//
// # Core Concepts
//
//   - Policy: an ordered list of rules deciding an operation
//   - Rule: a function that returns Allow, Deny, or Skip decisions
//   - Viewer: an interface representing the current user
//
// # Enforcing Policies
//
// A policy is enforced on a built persister. Its rules then run before
// every insert, update, delete and select:
//
//	p, err := b.Build(posts)
//	if err != nil {
//	    return err
//	}
//	privacy.Enforce(p, privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.IsOwner(postAuthor),
//	    privacy.AllowOperationRule(privacy.OpSelect),
//	    privacy.AlwaysDenyRule(),
//	})
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: denies access and stops evaluation
//   - Skip: continues to the next rule
//
// If all rules return Skip, the operation is allowed. End a policy with
// AlwaysDenyRule to deny by default.
//
// # Context Integration
//
// The viewer is stored in the context:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "user-123",
//	    Roles:  []string{"user"},
//	})
//	posts, err := p.Select(ctx, ids)
//
// A decision attached with DecisionContext bypasses the rules, e.g. for
// system jobs:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
//
// Denied operations fail with an error wrapping Deny.
package privacy
