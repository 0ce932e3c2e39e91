// Package mixin provides mapped superclasses for common columns.
//
// These mixins are OPTIONAL and provided as convenient starting points.
// Users are encouraged to create their own mappings tailored to their needs.
//
// Available mixins:
//   - CreateTime: created_at timestamp
//   - UpdateTime: updated_at timestamp
//   - Time: combines CreateTime and UpdateTime
//   - ID: UUID identifier generated before insert
//   - SoftDelete: deleted_at timestamp marking deleted rows
//   - TenantID: tenant_id column for multi-tenancy
//   - TimeSoftDelete: combines Time and SoftDelete
//
// Embed the struct in the entity and declare its mapping as superclass:
//
//	type User struct {
//		mixin.ID
//		mixin.Time
//		Name string
//	}
//
//	users := schema.New[*User]().
//		MapSuperclass(mixin.TimeMapping().Extends(mixin.IDMapping())).
//		Map(field.Map(userName))
//	p, err := b.Build(users)
//	if err != nil {
//		return err
//	}
//	mixin.Touch(p, time.Now)
//
// The timestamps are maintained by the listeners Touch registers on the
// built persister.
package mixin

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/mixin"
)

type (
	// CreateTime holds the creation time of an entity.
	//
	//	created_at TIMESTAMP NOT NULL
	CreateTime struct{ CreatedAt time.Time }

	// UpdateTime holds the last update time of an entity.
	//
	//	updated_at TIMESTAMP NOT NULL
	UpdateTime struct{ UpdatedAt time.Time }

	// Time composes CreateTime and UpdateTime. This is the most common
	// mixin for tracking entity timestamps.
	Time struct {
		CreateTime
		UpdateTime
	}

	// ID holds a UUID identifier, generated before the insert.
	//
	//	id UUID NOT NULL PRIMARY KEY
	ID struct{ ID uuid.UUID }

	// SoftDelete marks entities as deleted instead of deleting their rows.
	//
	//	deleted_at TIMESTAMP NULL
	SoftDelete struct{ DeletedAt *time.Time }

	// TenantID holds the tenant owning an entity. It is set from the
	// context on insert and cannot change.
	//
	//	tenant_id VARCHAR(64) NOT NULL
	TenantID struct{ TenantID string }

	// TimeSoftDelete composes Time and SoftDelete.
	TimeSoftDelete struct {
		Time
		SoftDelete
	}
)

var (
	createdAt = field.Prop("created_at", func(m *CreateTime) time.Time { return m.CreatedAt }, func(m *CreateTime, v time.Time) { m.CreatedAt = v })
	updatedAt = field.Prop("updated_at", func(m *UpdateTime) time.Time { return m.UpdatedAt }, func(m *UpdateTime, v time.Time) { m.UpdatedAt = v })
	deletedAt = field.Prop("deleted_at", func(m *SoftDelete) *time.Time { return m.DeletedAt }, func(m *SoftDelete, v *time.Time) { m.DeletedAt = v })
	tenantID  = field.Prop("tenant_id", func(m *TenantID) string { return m.TenantID }, func(m *TenantID, v string) { m.TenantID = v })
	id        = field.Prop("id", func(m *ID) uuid.UUID { return m.ID }, func(m *ID, v uuid.UUID) { m.ID = v })
)

// CreateTimeMapping returns the mapping of CreateTime.
func CreateTimeMapping() *mixin.Mapping {
	return mixin.New[*CreateTime](field.Map(createdAt).Mandatory())
}

// UpdateTimeMapping returns the mapping of UpdateTime.
func UpdateTimeMapping() *mixin.Mapping {
	return mixin.New[*UpdateTime](field.Map(updatedAt).Mandatory())
}

// TimeMapping returns the mapping of Time.
func TimeMapping() *mixin.Mapping {
	return mixin.New[*Time](field.Map(createdAt).Mandatory(), field.Map(updatedAt).Mandatory())
}

// IDMapping returns the mapping of ID. It declares the identifier of the
// hierarchy, so only a root entity may use it.
//
// For custom identifiers (e.g., Snowflake IDs), declare your own mapping:
//
//	mixin.New[*SnowflakeID]().Identify(field.ID(snowflakeID, field.Generated(snowflake.Next)))
func IDMapping() *mixin.Mapping {
	return mixin.New[*ID]().Identify(field.ID(id, field.UUID()))
}

// SoftDeleteMapping returns the mapping of SoftDelete.
func SoftDeleteMapping() *mixin.Mapping {
	return mixin.New[*SoftDelete](field.Map(deletedAt))
}

// TenantIDMapping returns the mapping of TenantID.
func TenantIDMapping() *mixin.Mapping {
	return mixin.New[*TenantID](field.Map(tenantID).Mandatory().Size(64))
}

// TimeSoftDeleteMapping returns the mapping of TimeSoftDelete.
func TimeSoftDeleteMapping() *mixin.Mapping {
	return mixin.New[*TimeSoftDelete](
		field.Map(createdAt).Mandatory(),
		field.Map(updatedAt).Mandatory(),
		field.Map(deletedAt),
	)
}

func as[T any](e any) (*T, bool) {
	v, ok := field.Upcast(e, reflect.TypeFor[*T]())
	if !ok {
		return nil, false
	}
	t, ok := v.(*T)
	return t, ok
}

// Touch registers the listeners maintaining the timestamps of the entities
// of p. Inserts set a zero created_at and the updated_at; updates set the
// updated_at and keep the stored created_at.
func Touch(p persister.Relational, now func() time.Time) {
	p.Listeners().OnInsert(persister.InsertListener{
		Before: func(_ context.Context, entities []any) error {
			t := now()
			for _, e := range entities {
				if c, ok := as[CreateTime](e); ok && c.CreatedAt.IsZero() {
					c.CreatedAt = t
				}
				if u, ok := as[UpdateTime](e); ok {
					u.UpdatedAt = t
				}
			}
			return nil
		},
	})
	p.Listeners().OnUpdate(persister.UpdateListener{
		Before: func(_ context.Context, pairs []persister.Pair, _ bool) error {
			t := now()
			for _, pr := range pairs {
				if u, ok := as[UpdateTime](pr.Modified); ok {
					u.UpdatedAt = t
				}
				if pr.Unmodified == nil {
					continue
				}
				if c, ok := as[CreateTime](pr.Modified); ok {
					if old, ok := as[CreateTime](pr.Unmodified); ok {
						c.CreatedAt = old.CreatedAt
					}
				}
			}
			return nil
		},
	})
}

// Trash marks the entities as deleted at t and writes them.
func Trash(ctx context.Context, p persister.Persister, t time.Time, entities ...any) error {
	for _, e := range entities {
		s, ok := as[SoftDelete](e)
		if !ok {
			return fmt.Errorf("mixin: %T does not embed SoftDelete", e)
		}
		s.DeletedAt = &t
	}
	return p.UpdateByID(ctx, entities)
}

// IsDeleted reports whether the entity embeds SoftDelete and is marked as
// deleted.
func IsDeleted(e any) bool {
	s, ok := as[SoftDelete](e)
	return ok && s.DeletedAt != nil
}

type tenantKey struct{}

// WithTenant returns a context inserting entities for the given tenant.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext returns the tenant of the context.
func TenantFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tenantKey{}).(string)
	return t, ok && t != ""
}

// ErrNoTenant is returned when an entity without tenant is inserted out
// of a tenant context.
var ErrNoTenant = errors.New("mixin: no tenant in context")

// Tenant registers the listeners maintaining the tenant of the entities
// of p: inserted entities get the tenant of the context, and updates
// changing the tenant of an entity fail.
func Tenant(p persister.Relational) {
	p.Listeners().OnInsert(persister.InsertListener{
		Before: func(ctx context.Context, entities []any) error {
			for _, e := range entities {
				m, ok := as[TenantID](e)
				if !ok || m.TenantID != "" {
					continue
				}
				t, ok := TenantFromContext(ctx)
				if !ok {
					return ErrNoTenant
				}
				m.TenantID = t
			}
			return nil
		},
	})
	p.Listeners().OnUpdate(persister.UpdateListener{
		Before: func(_ context.Context, pairs []persister.Pair, _ bool) error {
			for _, pr := range pairs {
				if pr.Unmodified == nil {
					continue
				}
				m, ok := as[TenantID](pr.Modified)
				old, ok2 := as[TenantID](pr.Unmodified)
				if ok && ok2 && m.TenantID != old.TenantID {
					return fmt.Errorf("mixin: tenant of %T cannot change from %q to %q", pr.Modified, old.TenantID, m.TenantID)
				}
			}
			return nil
		},
	})
}
