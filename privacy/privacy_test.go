package privacy_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/compiler"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/privacy"
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/schema/field"
)

type Post struct {
	ID     int
	Author string
	Tenant string
}

var (
	postID     = field.Prop("id", func(p *Post) int { return p.ID }, func(p *Post, v int) { p.ID = v })
	postAuthor = field.Prop("author", func(p *Post) string { return p.Author }, func(p *Post, v string) { p.Author = v })
	postTenant = field.Prop("tenant", func(p *Post) string { return p.Tenant }, func(p *Post, v string) { p.Tenant = v })
)

func TestDecisions(t *testing.T) {
	t.Parallel()
	err := privacy.Allowf("admin %s", "a8m")
	assert.ErrorIs(t, err, privacy.Allow)
	assert.EqualError(t, err, "admin a8m: strata/privacy: allow rule")
	assert.ErrorIs(t, privacy.Denyf("no"), privacy.Deny)
	assert.ErrorIs(t, privacy.Skipf("later"), privacy.Skip)

	assert.Equal(t, "Insert|Delete", (privacy.OpInsert | privacy.OpDelete).String())
	assert.Equal(t, "Op(0)", privacy.Op(0).String())
	assert.True(t, privacy.OpUpdate.Is(privacy.OpMutation))
	assert.False(t, privacy.OpSelect.Is(privacy.OpMutation))
}

func TestPolicy(t *testing.T) {
	t.Parallel()
	insert := &privacy.Operation{Op: privacy.OpInsert, Entities: []any{&Post{}}}
	tests := []struct {
		name   string
		policy privacy.Policy
		ctx    context.Context
		want   error
	}{
		{name: "empty", policy: nil, want: nil},
		{name: "skip", policy: privacy.Policy{privacy.ContextRule(func(context.Context) error { return nil })}, want: nil},
		{name: "allow", policy: privacy.Policy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()}, want: nil},
		{name: "deny", policy: privacy.Policy{privacy.AlwaysDenyRule(), privacy.AlwaysAllowRule()}, want: privacy.Deny},
		{name: "other op", policy: privacy.Policy{privacy.DenyOperationRule(privacy.OpDelete)}, want: nil},
		{name: "same op", policy: privacy.Policy{privacy.DenyOperationRule(privacy.OpInsert)}, want: privacy.Deny},
		{name: "allowed op", policy: privacy.Policy{privacy.AllowOperationRule(privacy.OpMutation), privacy.AlwaysDenyRule()}, want: nil},
		{
			name:   "context allow",
			policy: privacy.Policy{privacy.AlwaysDenyRule()},
			ctx:    privacy.DecisionContext(context.Background(), privacy.Allow),
			want:   nil,
		},
		{
			name:   "context deny",
			policy: privacy.Policy{privacy.AlwaysAllowRule()},
			ctx:    privacy.DecisionContext(context.Background(), privacy.Deny),
			want:   privacy.Deny,
		},
		{
			name:   "custom error",
			policy: privacy.Policy{privacy.RuleFunc(func(context.Context, *privacy.Operation) error { return io.EOF })},
			want:   io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			err := tt.policy.EvalOperation(ctx, insert)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecisionContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Equal(t, ctx, privacy.DecisionContext(ctx, nil))
	assert.Equal(t, ctx, privacy.DecisionContext(ctx, privacy.Skip))
	_, ok := privacy.DecisionFromContext(ctx)
	assert.False(t, ok)

	decision, ok := privacy.DecisionFromContext(privacy.DecisionContext(ctx, privacy.Allowf("system")))
	assert.True(t, ok)
	assert.NoError(t, decision)
}

func TestRules(t *testing.T) {
	t.Parallel()
	admin := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "1", Roles: []string{"admin"}, TenantID: "acme"})
	user := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "2", Roles: []string{"user"}, TenantID: "acme"})
	anon := context.Background()
	mine := &privacy.Operation{Op: privacy.OpInsert, Entities: []any{&Post{Author: "2", Tenant: "acme"}}}
	theirs := &privacy.Operation{Op: privacy.OpUpdate, Pairs: []persister.Pair{{Modified: &Post{Author: "1", Tenant: "other"}}}}
	sel := &privacy.Operation{Op: privacy.OpSelect, IDs: []any{1}}

	tests := []struct {
		name string
		rule privacy.Rule
		ctx  context.Context
		op   *privacy.Operation
		want error
	}{
		{name: "no viewer", rule: privacy.DenyIfNoViewer(), ctx: anon, op: sel, want: privacy.Deny},
		{name: "viewer", rule: privacy.DenyIfNoViewer(), ctx: user, op: sel, want: privacy.Skip},
		{name: "role", rule: privacy.HasRole("admin"), ctx: admin, op: sel, want: privacy.Allow},
		{name: "missing role", rule: privacy.HasRole("admin"), ctx: user, op: sel, want: privacy.Skip},
		{name: "any role", rule: privacy.HasAnyRole("moderator", "user"), ctx: user, op: sel, want: privacy.Allow},
		{name: "role no viewer", rule: privacy.HasAnyRole("user"), ctx: anon, op: sel, want: privacy.Skip},
		{name: "owner", rule: privacy.IsOwner(postAuthor), ctx: user, op: mine, want: privacy.Allow},
		{name: "not owner", rule: privacy.IsOwner(postAuthor), ctx: user, op: theirs, want: privacy.Skip},
		{name: "owner on select", rule: privacy.IsOwner(postAuthor), ctx: user, op: sel, want: privacy.Skip},
		{name: "tenant", rule: privacy.TenantRule(postTenant), ctx: user, op: mine, want: privacy.Allow},
		{name: "tenant mismatch", rule: privacy.TenantRule(postTenant), ctx: user, op: theirs, want: privacy.Deny},
		{name: "tenant query", rule: privacy.TenantQueryRule(), ctx: user, op: sel, want: privacy.Skip},
		{name: "tenant query no viewer", rule: privacy.TenantQueryRule(), ctx: anon, op: sel, want: privacy.Deny},
		{
			name: "tenant query no tenant",
			rule: privacy.TenantQueryRule(),
			ctx:  privacy.WithViewer(anon, &privacy.SimpleViewer{UserID: "3"}),
			op:   sel,
			want: privacy.Deny,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.rule.EvalOperation(tt.ctx, tt.op), tt.want)
		})
	}
}

func TestEnforce(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	b, err := compiler.NewBuilder(
		compiler.WithDriver(sql.OpenDB(dialect.SQLite, db)),
		compiler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	p, err := b.Build(schema.New[*Post]().
		Identify(field.ID(postID, field.DatabaseGenerated())).
		Map(field.Map(postAuthor), field.Map(postTenant)))
	require.NoError(t, err)

	var seen []privacy.Op
	privacy.Enforce(p, privacy.Policy{
		privacy.RuleFunc(func(_ context.Context, o *privacy.Operation) error {
			seen = append(seen, o.Op)
			assert.Equal(t, p.EntityType(), o.Type)
			return privacy.Skip
		}),
		privacy.DenyIfNoViewer(),
		privacy.IsOwner(postAuthor),
		privacy.AlwaysDenyRule(),
	})

	ctx := context.Background()
	err = p.Insert(ctx, []any{&Post{Author: "1"}})
	require.ErrorIs(t, err, privacy.Deny)

	viewer := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "1"})
	err = p.Insert(viewer, []any{&Post{Author: "2"}})
	require.ErrorIs(t, err, privacy.Deny)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `posts` (`author`, `tenant`) VALUES (?, ?)")).
		WithArgs("1", "").
		WillReturnResult(sqlmock.NewResult(4, 1))
	post := &Post{Author: "1"}
	require.NoError(t, p.Insert(viewer, []any{post}))
	assert.Equal(t, 4, post.ID)

	err = p.Delete(viewer, []any{&Post{ID: 4, Author: "2"}})
	require.ErrorIs(t, err, privacy.Deny)
	err = p.DeleteByID(viewer, []any{&Post{ID: 4}})
	require.ErrorIs(t, err, privacy.Deny)
	_, err = p.Select(viewer, []any{4})
	require.True(t, errors.Is(err, privacy.Deny), fmt.Sprint(err))

	assert.Equal(t, []privacy.Op{
		privacy.OpInsert, privacy.OpInsert, privacy.OpInsert,
		privacy.OpDelete, privacy.OpDelete, privacy.OpSelect,
	}, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}
