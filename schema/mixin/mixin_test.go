package mixin_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/mixin"
	"github.com/syssam/strata/schema/naming"
)

type (
	Address struct {
		Street string
		City   string
	}
	Person struct {
		Name string
		Home *Address
		Work *Address
	}
)

var (
	addressStreet = field.Prop("street", func(a *Address) string { return a.Street }, func(a *Address, v string) { a.Street = v })
	addressCity   = field.Prop("city", func(a *Address) string { return a.City }, func(a *Address, v string) { a.City = v })
	personName    = field.Prop("name", func(p *Person) string { return p.Name }, func(p *Person, v string) { p.Name = v })
	personHome    = field.Prop("home", func(p *Person) *Address { return p.Home }, func(p *Person, v *Address) { p.Home = v })
	personWork    = field.Prop("work", func(p *Person) *Address { return p.Work }, func(p *Person, v *Address) { p.Work = v })
)

func TestMapping(t *testing.T) {
	t.Parallel()
	address := mixin.New[*Address](field.Map(addressStreet)).Add(field.Map(addressCity))
	require.Equal(t, reflect.TypeFor[*Address](), address.Type())
	require.Len(t, address.Linkages(), 2)

	strategy := &naming.Strategy{JoinSuffix: "_ref"}
	person := mixin.New[*Person](field.Map(personName)).
		Embed(personHome, address).
		EmbedWith(personWork, address, map[string]string{"city": "work_city"}).
		WithNaming(strategy)
	require.Len(t, person.Embeds(), 2)
	require.Same(t, strategy, person.Naming())

	home := person.Embeds()[0]
	assert.Same(t, personHome, home.Accessor())
	assert.Same(t, address, home.Mapping())
	_, ok := home.Override("city")
	assert.False(t, ok)
	c, ok := person.Embeds()[1].Override("city")
	assert.True(t, ok)
	assert.Equal(t, "work_city", c)

	base := mixin.New[*Person]().Identify(field.ID(personName, field.Assigned(nil, nil)))
	person.Extends(base)
	assert.Same(t, base, person.Superclass())
	assert.NotNil(t, base.Identifier())
	assert.Nil(t, person.Identifier())
}
