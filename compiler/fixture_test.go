package compiler_test

import (
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/schema/edge"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/mixin"
)

type (
	User struct {
		ID     int
		Name   string
		Cars   []*Car
		Groups []*Group
		Tags   []string
	}
	Car struct {
		ID     int
		Model  string
		Owner  *User
		Engine *Engine
	}
	Engine struct {
		ID    int
		Power int
	}
	Group struct {
		ID    int
		Name  string
		Users []*User
	}
)

var (
	userID     = field.Prop("id", func(u *User) int { return u.ID }, func(u *User, v int) { u.ID = v })
	userName   = field.Prop("name", func(u *User) string { return u.Name }, func(u *User, v string) { u.Name = v })
	userCars   = field.Slice("cars", func(u *User) []*Car { return u.Cars }, func(u *User, v []*Car) { u.Cars = v })
	userGroups = field.Slice("groups", func(u *User) []*Group { return u.Groups }, func(u *User, v []*Group) { u.Groups = v })
	userTags   = field.Slice("tags", func(u *User) []string { return u.Tags }, func(u *User, v []string) { u.Tags = v })

	carID     = field.Prop("id", func(c *Car) int { return c.ID }, func(c *Car, v int) { c.ID = v })
	carModel  = field.Prop("model", func(c *Car) string { return c.Model }, func(c *Car, v string) { c.Model = v })
	carOwner  = field.Prop("owner", func(c *Car) *User { return c.Owner }, func(c *Car, v *User) { c.Owner = v })
	carEngine = field.Prop("engine", func(c *Car) *Engine { return c.Engine }, func(c *Car, v *Engine) { c.Engine = v })

	engineID    = field.Prop("id", func(e *Engine) int { return e.ID }, func(e *Engine, v int) { e.ID = v })
	enginePower = field.Prop("power", func(e *Engine) int { return e.Power }, func(e *Engine, v int) { e.Power = v })

	groupID    = field.Prop("id", func(g *Group) int { return g.ID }, func(g *Group, v int) { g.ID = v })
	groupName  = field.Prop("name", func(g *Group) string { return g.Name }, func(g *Group, v string) { g.Name = v })
	groupUsers = field.Slice("users", func(g *Group) []*User { return g.Users }, func(g *Group, v []*User) { g.Users = v })
)

// model declares users owning cars, each with an engine, users joining
// groups, and user tags. Users and cars reference each other.
type model struct {
	user, car, engine, group *schema.Entity
}

func newModel() *model { return modelWith(edge.All) }

// modelWith is like newModel, with the cars of users cascaded in the given
// mode.
func modelWith(cars edge.Mode) *model {
	m := &model{
		user:   schema.New[*User]().Identify(field.ID(userID, field.DatabaseGenerated())).Map(field.Map(userName)),
		car:    schema.New[*Car]().Identify(field.ID(carID, field.DatabaseGenerated())).Map(field.Map(carModel)),
		engine: schema.New[*Engine]().Identify(field.ID(engineID, field.DatabaseGenerated())).Map(field.Map(enginePower)),
		group:  schema.New[*Group]().Identify(field.ID(groupID, field.DatabaseGenerated())).Map(field.Map(groupName)),
	}
	m.user.Relate(
		edge.Many(userCars, m.car).MappedBy(carOwner).Cascade(cars),
		edge.ManyToMany(userGroups, m.group).Reverse(groupUsers).Cascade(edge.AssociationOnly),
		edge.Elements(userTags),
	)
	m.car.Relate(
		edge.One(carOwner, m.user).Cascade(edge.ReadOnly),
		edge.One(carEngine, m.engine),
	)
	return m
}

type (
	Animal struct {
		ID   int
		Name string
	}
	Mammal struct {
		Animal
		Legs int
	}
	Dog struct {
		Mammal
		Breed string
	}
)

var (
	animalID   = field.Prop("id", func(a *Animal) int { return a.ID }, func(a *Animal, v int) { a.ID = v })
	animalName = field.Prop("name", func(a *Animal) string { return a.Name }, func(a *Animal, v string) { a.Name = v })
	mammalLegs = field.Prop("legs", func(m *Mammal) int { return m.Legs }, func(m *Mammal, v int) { m.Legs = v })
	dogBreed   = field.Prop("breed", func(d *Dog) string { return d.Breed }, func(d *Dog, v string) { d.Breed = v })
)

// animals declares a chain of joined tables: animals, mammals and dogs.
func animals() (animal, mammal, dog *schema.Entity) {
	animal = schema.New[*Animal]().Identify(field.ID(animalID, field.DatabaseGenerated())).Map(field.Map(animalName))
	mammal = schema.New[*Mammal]().ExtendsJoined(animal, "mammals").Map(field.Map(mammalLegs))
	dog = schema.New[*Dog]().ExtendsJoined(mammal, "dogs").Map(field.Map(dogBreed))
	return animal, mammal, dog
}

type (
	Vehicle struct {
		ID     int
		Wheels int
	}
	Bike struct {
		Vehicle
		Gears int
	}
	Truck struct {
		Vehicle
		Load float64
	}
)

var (
	vehicleID     = field.Prop("id", func(v *Vehicle) int { return v.ID }, func(v *Vehicle, id int) { v.ID = id })
	vehicleWheels = field.Prop("wheels", func(v *Vehicle) int { return v.Wheels }, func(v *Vehicle, n int) { v.Wheels = n })
	bikeGears     = field.Prop("gears", func(b *Bike) int { return b.Gears }, func(b *Bike, n int) { b.Gears = n })
	truckLoad     = field.Prop("load", func(t *Truck) float64 { return t.Load }, func(t *Truck, v float64) { t.Load = v })
)

// vehicles declares a vehicle hierarchy stored with the given policy.
func vehicles(policy func(...*schema.SubEntity) schema.Polymorphism) *schema.Entity {
	return schema.New[*Vehicle]().
		Identify(field.ID(vehicleID, field.Assigned(nil, nil))).
		Map(field.Map(vehicleWheels)).
		Polymorphic(policy(
			schema.Sub[*Bike]().Map(field.Map(bikeGears)).Discriminator("bike"),
			schema.Sub[*Truck]().Map(field.Map(truckLoad)).Discriminator("truck"),
		))
}

func singleTable(subs ...*schema.SubEntity) schema.Polymorphism { return schema.OnSingleTable(subs...) }

func joinedTables(subs ...*schema.SubEntity) schema.Polymorphism { return schema.OnJoinedTables(subs...) }

func tablePerClass(subs ...*schema.SubEntity) schema.Polymorphism { return schema.OnTablePerClass(subs...) }

var ebikeBattery = field.Prop("battery", func(e *EBike) int { return e.Battery }, func(e *EBike, v int) { e.Battery = v })

// nestedVehicles declares electric bikes joined under bikes, themselves
// joined under vehicles.
func nestedVehicles() *schema.Entity {
	return schema.New[*Vehicle]().
		Identify(field.ID(vehicleID, field.Assigned(nil, nil))).
		Map(field.Map(vehicleWheels)).
		Polymorphic(schema.OnJoinedTables(
			schema.Sub[*Bike]().Map(field.Map(bikeGears)).Polymorphic(schema.OnJoinedTables(
				schema.Sub[*EBike]().Map(field.Map(ebikeBattery)).OnTable("ebikes"),
			)),
			schema.Sub[*Truck]().Map(field.Map(truckLoad)),
		))
}

type (
	Member struct {
		ID     int
		Name   string
		Card   *Card
		Badge  *Badge
		Pets   []*Pet
		Notes  []*Note
		Clubs  []*Club
		Phones []Phone
	}
	Card struct {
		ID     int
		Number string
		Holder *Member
	}
	Badge struct {
		ID   int
		Code string
	}
	Pet struct {
		ID   int
		Name string
	}
	Note struct {
		ID   int
		Text string
	}
	Club struct {
		ID   int
		Name string
	}
	Phone struct {
		Kind   string
		Number string
	}
)

var (
	memberID     = field.Prop("id", func(m *Member) int { return m.ID }, func(m *Member, v int) { m.ID = v })
	memberName   = field.Prop("name", func(m *Member) string { return m.Name }, func(m *Member, v string) { m.Name = v })
	memberCard   = field.Prop("card", func(m *Member) *Card { return m.Card }, func(m *Member, v *Card) { m.Card = v })
	memberBadge  = field.Prop("badge", func(m *Member) *Badge { return m.Badge }, func(m *Member, v *Badge) { m.Badge = v })
	memberPets   = field.Slice("pets", func(m *Member) []*Pet { return m.Pets }, func(m *Member, v []*Pet) { m.Pets = v })
	memberNotes  = field.Slice("notes", func(m *Member) []*Note { return m.Notes }, func(m *Member, v []*Note) { m.Notes = v })
	memberClubs  = field.Slice("clubs", func(m *Member) []*Club { return m.Clubs }, func(m *Member, v []*Club) { m.Clubs = v })
	memberPhones = field.Slice("phones", func(m *Member) []Phone { return m.Phones }, func(m *Member, v []Phone) { m.Phones = v })

	cardID     = field.Prop("id", func(c *Card) int { return c.ID }, func(c *Card, v int) { c.ID = v })
	cardNumber = field.Prop("number", func(c *Card) string { return c.Number }, func(c *Card, v string) { c.Number = v })
	cardHolder = field.Prop("holder", func(c *Card) *Member { return c.Holder }, func(c *Card, v *Member) { c.Holder = v })

	badgeID   = field.Prop("id", func(b *Badge) int { return b.ID }, func(b *Badge, v int) { b.ID = v })
	badgeCode = field.Prop("code", func(b *Badge) string { return b.Code }, func(b *Badge, v string) { b.Code = v })
	petID     = field.Prop("id", func(p *Pet) int { return p.ID }, func(p *Pet, v int) { p.ID = v })
	petName   = field.Prop("name", func(p *Pet) string { return p.Name }, func(p *Pet, v string) { p.Name = v })
	noteID    = field.Prop("id", func(n *Note) int { return n.ID }, func(n *Note, v int) { n.ID = v })
	noteText  = field.Prop("text", func(n *Note) string { return n.Text }, func(n *Note, v string) { n.Text = v })
	clubID    = field.Prop("id", func(c *Club) int { return c.ID }, func(c *Club, v int) { c.ID = v })
	clubName  = field.Prop("name", func(c *Club) string { return c.Name }, func(c *Club, v string) { c.Name = v })

	phoneKind   = field.Prop("kind", func(p *Phone) string { return p.Kind }, func(p *Phone, v string) { p.Kind = v })
	phoneNumber = field.Prop("number", func(p *Phone) string { return p.Number }, func(p *Phone, v string) { p.Number = v })
)

func cards() *schema.Entity {
	return schema.New[*Card]().Identify(field.ID(cardID, field.DatabaseGenerated())).Map(field.Map(cardNumber))
}

// members declares a member relating to one target of each relation kind,
// all cascaded in the given mode, and embeddable phone numbers.
//
//	card   one-to-one, holder_id on cards
//	badge  one-to-one, badge_id on members
//	pets   indexed one-to-many, member_id and idx on pets
//	notes  indexed one-to-many, through members_notes
//	clubs  indexed many-to-many, through members_clubs
func members(mode edge.Mode) *schema.Entity {
	return schema.New[*Member]().
		Identify(field.ID(memberID, field.DatabaseGenerated())).
		Map(field.Map(memberName)).
		Relate(
			edge.One(memberCard, cards()).MappedBy(cardHolder).Cascade(mode),
			edge.One(memberBadge, schema.New[*Badge]().
				Identify(field.ID(badgeID, field.DatabaseGenerated())).
				Map(field.Map(badgeCode))).Cascade(mode),
			edge.Many(memberPets, schema.New[*Pet]().
				Identify(field.ID(petID, field.DatabaseGenerated())).
				Map(field.Map(petName))).ReverseColumn("member_id").Indexed().Cascade(mode),
			edge.Many(memberNotes, schema.New[*Note]().
				Identify(field.ID(noteID, field.DatabaseGenerated())).
				Map(field.Map(noteText))).Indexed().Cascade(mode),
			edge.ManyToMany(memberClubs, schema.New[*Club]().
				Identify(field.ID(clubID, field.DatabaseGenerated())).
				Map(field.Map(clubName))).Indexed().Cascade(mode),
			edge.Elements(memberPhones).Embedded(mixin.New[*Phone](field.Map(phoneKind), field.Map(phoneNumber))),
		)
}

type Box struct {
	ID      int
	Label   string
	Engines []*Engine
}

var (
	boxID      = field.Prop("id", func(b *Box) int { return b.ID }, func(b *Box, v int) { b.ID = v })
	boxLabel   = field.Prop("label", func(b *Box) string { return b.Label }, func(b *Box, v string) { b.Label = v })
	boxEngines = field.Slice("engines", func(b *Box) []*Engine { return b.Engines }, func(b *Box, v []*Engine) { b.Engines = v })
)
