package compiler_test

import (
	"context"
	"database/sql"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/strata"
	"github.com/syssam/strata/compiler"
	"github.com/syssam/strata/dialect"
	dsql "github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/persister"
	"github.com/syssam/strata/schema"
	"github.com/syssam/strata/schema/edge"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/index"
)

// openDB returns a fresh in-memory database.
func openDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// migrate creates the tables built by b.
func migrate(t *testing.T, b *compiler.Builder, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	stmts, err := b.DDL(ctx)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}

// openSQLite returns a builder executing on a fresh in-memory database
// holding the tables of e.
func openSQLite(t *testing.T, name string, e *schema.Entity) (*compiler.Builder, persister.Relational, *sql.DB) {
	t.Helper()
	db := openDB(t, name)
	b := newBuilder(t, compiler.WithDriver(dsql.OpenDB(dialect.SQLite, db)))
	p, err := b.Build(e)
	require.NoError(t, err)
	migrate(t, b, db)
	return b, p, db
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestInsertJoined(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, _, dog := animals()
	b := newBuilder(t, compiler.WithDriver(dsql.OpenDB(dialect.SQLite, db)))
	p, err := b.Build(dog)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `animals` (`name`) VALUES (?)")).
		WithArgs("rex").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `mammals` (`id`, `legs`) VALUES (?, ?)")).
		WithArgs(7, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `dogs` (`id`, `breed`) VALUES (?, ?)")).
		WithArgs(7, "labrador").
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := &Dog{Mammal: Mammal{Animal: Animal{Name: "rex"}, Legs: 4}, Breed: "labrador"}
	require.NoError(t, p.Insert(context.Background(), []any{d}))
	assert.Equal(t, 7, d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJoined(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, _, dog := animals()
	b := newBuilder(t, compiler.WithDriver(dsql.OpenDB(dialect.SQLite, db)))
	p, err := b.Build(dog)
	require.NoError(t, err)

	for _, table := range []string{"dogs", "mammals", "animals"} {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `" + table + "`")).
			WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	d := &Dog{Mammal: Mammal{Animal: Animal{ID: 3}}}
	require.NoError(t, p.Delete(context.Background(), []any{d}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistGraph(t *testing.T) {
	t.Parallel()
	m := newModel()
	b, users, db := openSQLite(t, "graph", m.user)
	ctx := context.Background()

	groups, ok := b.Persister(reflect.TypeFor[*Group]())
	require.True(t, ok)
	admins, staff := &Group{Name: "admins"}, &Group{Name: "staff"}
	require.NoError(t, groups.Insert(ctx, []any{admins, staff}))
	require.NotZero(t, admins.ID)

	u := &User{
		Name: "a8m",
		Cars: []*Car{
			{Model: "tesla", Engine: &Engine{Power: 400}},
			{Model: "mazda", Engine: &Engine{Power: 150}},
		},
		Groups: []*Group{admins, staff},
		Tags:   []string{"go", "sql"},
	}
	require.NoError(t, users.Persist(ctx, []any{u}))
	require.NotZero(t, u.ID)
	assert.Equal(t, 2, count(t, db, "cars"))
	assert.Equal(t, 2, count(t, db, "engines"))
	assert.Equal(t, 2, count(t, db, "users_groups"))
	assert.Equal(t, 2, count(t, db, "users_tags"))
	for _, c := range u.Cars {
		assert.Same(t, u, c.Owner)
	}

	loaded, err := users.Select(ctx, []any{u.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0].(*User)
	assert.Equal(t, "a8m", got.Name)
	assert.ElementsMatch(t, []string{"go", "sql"}, got.Tags)
	require.Len(t, got.Groups, 2)
	require.Len(t, got.Cars, 2)
	models := make([]string, 0, 2)
	for _, c := range got.Cars {
		models = append(models, c.Model)
		require.NotNil(t, c.Engine)
		assert.NotZero(t, c.Engine.Power)
		// The owner closes the cycle and is the instance being loaded.
		assert.Same(t, got, c.Owner)
	}
	assert.ElementsMatch(t, []string{"tesla", "mazda"}, models)

	// Removing a group from an association-only relation drops the
	// association record and keeps the group.
	u.Groups = []*Group{admins}
	u.Tags = []string{"go"}
	require.NoError(t, users.Persist(ctx, []any{u}))
	assert.Equal(t, 1, count(t, db, "users_groups"))
	assert.Equal(t, 2, count(t, db, "groups"))
	assert.Equal(t, 1, count(t, db, "users_tags"))

	cars, ok := b.Persister(reflect.TypeFor[*Car]())
	require.True(t, ok)
	loaded, err = cars.Select(ctx, []any{u.Cars[0].ID})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	car := loaded[0].(*Car)
	require.NotNil(t, car.Owner)
	assert.Equal(t, u.ID, car.Owner.ID)
	require.Len(t, car.Owner.Cars, 2)
}

func TestPersistSingleTable(t *testing.T) {
	t.Parallel()
	_, p, db := openSQLite(t, "single", vehicles(singleTable))
	ctx := context.Background()

	bike := &Bike{Vehicle: Vehicle{ID: 1, Wheels: 2}, Gears: 21}
	truck := &Truck{Vehicle: Vehicle{ID: 2, Wheels: 6}, Load: 7.5}
	plain := &Vehicle{ID: 3, Wheels: 4}
	require.NoError(t, p.Insert(ctx, []any{bike, truck, plain}))
	assert.Equal(t, 3, count(t, db, "vehicles"))

	var dtype string
	require.NoError(t, db.QueryRow("SELECT dtype FROM vehicles WHERE id = 2").Scan(&dtype))
	assert.Equal(t, "truck", dtype)

	loaded, err := p.Select(ctx, []any{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.IsType(t, &Bike{}, loaded[0])
	assert.Equal(t, 21, loaded[0].(*Bike).Gears)
	assert.Equal(t, 2, loaded[0].(*Bike).Wheels)
	require.IsType(t, &Truck{}, loaded[1])
	assert.Equal(t, 7.5, loaded[1].(*Truck).Load)
	require.IsType(t, &Vehicle{}, loaded[2])
	assert.Equal(t, 4, loaded[2].(*Vehicle).Wheels)
}

func TestPersistJoinedTables(t *testing.T) {
	t.Parallel()
	_, p, db := openSQLite(t, "joined", vehicles(joinedTables))
	ctx := context.Background()

	require.NoError(t, p.Insert(ctx, []any{
		&Bike{Vehicle: Vehicle{ID: 1, Wheels: 2}, Gears: 3},
		&Truck{Vehicle: Vehicle{ID: 2, Wheels: 8}, Load: 12},
	}))
	assert.Equal(t, 2, count(t, db, "vehicles"))
	assert.Equal(t, 1, count(t, db, "bikes"))
	assert.Equal(t, 1, count(t, db, "trucks"))

	loaded, err := p.Select(ctx, []any{2, 1})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	truck, ok := loaded[0].(*Truck)
	require.True(t, ok)
	assert.Equal(t, 8, truck.Wheels)
	assert.Equal(t, 12.0, truck.Load)
	bike, ok := loaded[1].(*Bike)
	require.True(t, ok)
	assert.Equal(t, 3, bike.Gears)

	require.NoError(t, p.Delete(ctx, []any{bike}))
	assert.Equal(t, 1, count(t, db, "vehicles"))
	assert.Zero(t, count(t, db, "bikes"))
}

func TestPersistDetachedCars(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode          edge.Mode
		cars, engines int
	}{
		{mode: edge.All, cars: 2, engines: 2},
		{mode: edge.AllOrphanRemoval, cars: 1, engines: 1},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()
			_, users, db := openSQLite(t, "cars_"+tt.mode.String(), modelWith(tt.mode).user)
			ctx := context.Background()
			u := &User{Name: "a8m", Cars: []*Car{
				{Model: "tesla", Engine: &Engine{Power: 400}},
				{Model: "mazda", Engine: &Engine{Power: 150}},
			}}
			require.NoError(t, users.Persist(ctx, []any{u}))
			dropped := u.Cars[1].ID
			u.Cars = u.Cars[:1]
			require.NoError(t, users.Persist(ctx, []any{u}))

			assert.Equal(t, tt.cars, count(t, db, "cars"))
			assert.Equal(t, tt.engines, count(t, db, "engines"))
			var owned int
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cars WHERE owner_id IS NOT NULL").Scan(&owned))
			assert.Equal(t, 1, owned)
			if tt.mode == edge.All {
				var owner sql.NullInt64
				require.NoError(t, db.QueryRow("SELECT owner_id FROM cars WHERE id = ?", dropped).Scan(&owner))
				assert.False(t, owner.Valid)
			}

			loaded, err := users.Select(ctx, []any{u.ID})
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			require.Len(t, loaded[0].(*User).Cars, 1)
			assert.Equal(t, "tesla", loaded[0].(*User).Cars[0].Model)
		})
	}
}

func TestPersistDetachedTargets(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode   edge.Mode
		counts map[string]int
	}{
		{
			mode: edge.All,
			counts: map[string]int{
				"cards": 1, "badges": 1, "pets": 2, "notes": 2, "clubs": 2,
				"members_notes": 1, "members_clubs": 1,
			},
		},
		{
			mode: edge.AllOrphanRemoval,
			counts: map[string]int{
				"cards": 0, "badges": 0, "pets": 1, "notes": 1, "clubs": 1,
				"members_notes": 1, "members_clubs": 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			t.Parallel()
			_, p, db := openSQLite(t, "targets_"+tt.mode.String(), members(tt.mode))
			ctx := context.Background()
			m := &Member{
				Name:  "a8m",
				Card:  &Card{Number: "c1"},
				Badge: &Badge{Code: "b1"},
				Pets:  []*Pet{{Name: "rex"}, {Name: "tom"}},
				Notes: []*Note{{Text: "first"}, {Text: "second"}},
				Clubs: []*Club{{Name: "chess"}, {Name: "go"}},
			}
			require.NoError(t, p.Persist(ctx, []any{m}))
			for _, table := range []string{"cards", "badges"} {
				assert.Equal(t, 1, count(t, db, table), table)
			}
			for _, table := range []string{"pets", "notes", "clubs", "members_notes", "members_clubs"} {
				assert.Equal(t, 2, count(t, db, table), table)
			}
			card := m.Card
			m.Card, m.Badge = nil, nil
			m.Pets, m.Notes, m.Clubs = m.Pets[:1], m.Notes[:1], m.Clubs[:1]
			require.NoError(t, p.Persist(ctx, []any{m}))

			for table, n := range tt.counts {
				assert.Equal(t, n, count(t, db, table), table)
			}
			var badge sql.NullInt64
			require.NoError(t, db.QueryRow("SELECT badge_id FROM members WHERE id = ?", m.ID).Scan(&badge))
			assert.False(t, badge.Valid)
			if tt.mode == edge.All {
				var holder sql.NullInt64
				require.NoError(t, db.QueryRow("SELECT holder_id FROM cards WHERE id = ?", card.ID).Scan(&holder))
				assert.False(t, holder.Valid)
				var owned int
				require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM pets WHERE member_id IS NULL AND idx IS NULL").Scan(&owned))
				assert.Equal(t, 1, owned)
			}

			loaded, err := p.Select(ctx, []any{m.ID})
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			got := loaded[0].(*Member)
			assert.Nil(t, got.Card)
			assert.Nil(t, got.Badge)
			require.Len(t, got.Pets, 1)
			require.Len(t, got.Notes, 1)
			require.Len(t, got.Clubs, 1)
		})
	}
}

func TestPersistMandatory(t *testing.T) {
	t.Parallel()
	seat := schema.New[*Seat]().
		Identify(field.CompositeID(seatKey, field.Assigned(nil, nil), field.Map(seatRow), field.Map(seatNumber))).
		Map(field.Map(seatLabel))
	tests := []struct {
		name           string
		entity         *schema.Entity
		missing, valid any
		clear          func(any)
	}{
		{
			name: "source owned",
			entity: schema.New[*Ticket]().
				Identify(field.ID(ticketID, field.DatabaseGenerated())).
				Relate(edge.One(ticketSeat, seat).Mandatory()),
			missing: &Ticket{},
			valid:   &Ticket{Seat: &Seat{Key: SeatKey{Row: "A", Number: 1}}},
			clear:   func(e any) { e.(*Ticket).Seat = nil },
		},
		{
			name: "target owned",
			entity: schema.New[*Member]().
				Identify(field.ID(memberID, field.DatabaseGenerated())).
				Map(field.Map(memberName)).
				Relate(edge.One(memberCard, cards()).MappedBy(cardHolder).Mandatory()),
			missing: &Member{Name: "a8m"},
			valid:   &Member{Name: "nati", Card: &Card{Number: "c1"}},
			clear:   func(e any) { e.(*Member).Card = nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, p, db := openSQLite(t, "mandatory_"+strings.ReplaceAll(tt.name, " ", "_"), tt.entity)
			ctx := context.Background()
			err := p.Insert(ctx, []any{tt.missing})
			require.Error(t, err)
			assert.True(t, strata.IsMappingError(err), err)
			assert.Contains(t, err.Error(), "mandatory relation has no target")
			assert.Zero(t, count(t, db, p.Table().Name))

			require.NoError(t, p.Insert(ctx, []any{tt.valid}))
			tt.clear(tt.valid)
			err = p.Persist(ctx, []any{tt.valid})
			require.Error(t, err)
			assert.True(t, strata.IsMappingError(err), err)
			assert.Equal(t, 1, count(t, db, p.Table().Name))
		})
	}
}

func TestPersistCorrelation(t *testing.T) {
	t.Parallel()
	card := cards().Indexes(index.Fields("number").Unique())
	member := schema.New[*Member]().
		Identify(field.ID(memberID, field.DatabaseGenerated())).
		Map(field.Map(memberName)).
		Relate(edge.One(memberCard, card).ReverseColumn("member_id"))
	b, p, db := openSQLite(t, "correlation", member)
	ctx := context.Background()

	m := &Member{Name: "a8m", Card: &Card{Number: "c1"}}
	require.NoError(t, p.Insert(ctx, []any{m}))
	var owner int
	require.NoError(t, db.QueryRow("SELECT member_id FROM cards WHERE number = 'c1'").Scan(&owner))
	assert.Equal(t, m.ID, owner)

	loaded, err := p.Select(ctx, []any{m.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.NotNil(t, loaded[0].(*Member).Card)
	assert.Equal(t, "c1", loaded[0].(*Member).Card.Number)

	// The card insert fails on the unique number after the member row is
	// written. The failed operation drops the member correlated to dup.
	dup := &Card{Number: "c1"}
	err = p.Insert(ctx, []any{&Member{Name: "nati", Card: dup}})
	require.Error(t, err)
	assert.True(t, strata.IsMutationError(err), err)

	cp, ok := b.Persister(reflect.TypeFor[*Card]())
	require.True(t, ok)
	dup.Number = "c2"
	require.NoError(t, cp.Insert(ctx, []any{dup}))
	var ref sql.NullInt64
	require.NoError(t, db.QueryRow("SELECT member_id FROM cards WHERE number = 'c2'").Scan(&ref))
	assert.False(t, ref.Valid)
}

func TestPersistIndexedCollections(t *testing.T) {
	t.Parallel()
	_, p, db := openSQLite(t, "indexed", members(edge.All))
	ctx := context.Background()
	m := &Member{
		Name:  "a8m",
		Pets:  []*Pet{{Name: "rex"}, {Name: "tom"}, {Name: "max"}},
		Notes: []*Note{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		Clubs: []*Club{{Name: "chess"}, {Name: "go"}, {Name: "sql"}},
	}
	require.NoError(t, p.Persist(ctx, []any{m}))

	names := func(m *Member) (pets, notes, clubs []string) {
		for _, x := range m.Pets {
			pets = append(pets, x.Name)
		}
		for _, x := range m.Notes {
			notes = append(notes, x.Text)
		}
		for _, x := range m.Clubs {
			clubs = append(clubs, x.Name)
		}
		return pets, notes, clubs
	}
	reload := func() *Member {
		t.Helper()
		loaded, err := p.Select(ctx, []any{m.ID})
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		return loaded[0].(*Member)
	}
	pets, notes, clubs := names(reload())
	assert.Equal(t, []string{"rex", "tom", "max"}, pets)
	assert.Equal(t, []string{"a", "b", "c"}, notes)
	assert.Equal(t, []string{"chess", "go", "sql"}, clubs)

	m.Pets = []*Pet{m.Pets[2], m.Pets[0], m.Pets[1]}
	m.Notes = []*Note{m.Notes[1], m.Notes[2], m.Notes[0]}
	m.Clubs = []*Club{m.Clubs[2], m.Clubs[1], m.Clubs[0]}
	require.NoError(t, p.Persist(ctx, []any{m}))
	pets, notes, clubs = names(reload())
	assert.Equal(t, []string{"max", "rex", "tom"}, pets)
	assert.Equal(t, []string{"b", "c", "a"}, notes)
	assert.Equal(t, []string{"sql", "go", "chess"}, clubs)
	assert.Equal(t, 3, count(t, db, "members_notes"))
	assert.Equal(t, 3, count(t, db, "members_clubs"))

	// Dropping the head shifts the remaining records down.
	m.Clubs = m.Clubs[1:]
	m.Notes = append(m.Notes[1:], &Note{Text: "d"})
	require.NoError(t, p.Persist(ctx, []any{m}))
	_, notes, clubs = names(reload())
	assert.Equal(t, []string{"c", "a", "d"}, notes)
	assert.Equal(t, []string{"go", "chess"}, clubs)
	var maxIdx int
	require.NoError(t, db.QueryRow("SELECT MAX(idx) FROM members_clubs").Scan(&maxIdx))
	assert.Equal(t, 1, maxIdx)
}

func TestPersistElements(t *testing.T) {
	t.Parallel()
	_, p, db := openSQLite(t, "elements", members(edge.All))
	ctx := context.Background()
	home, work := Phone{Kind: "home", Number: "1"}, Phone{Kind: "work", Number: "2"}
	m := &Member{Name: "a8m", Phones: []Phone{home, work, home}}
	require.NoError(t, p.Persist(ctx, []any{m}))
	assert.Equal(t, 2, count(t, db, "members_phones"))

	loaded, err := p.Select(ctx, []any{m.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.ElementsMatch(t, []Phone{home, work}, loaded[0].(*Member).Phones)

	mobile := Phone{Kind: "mobile", Number: "3"}
	m.Phones = []Phone{home, mobile}
	require.NoError(t, p.Persist(ctx, []any{m}))
	assert.Equal(t, 2, count(t, db, "members_phones"))
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM members_phones WHERE kind = 'work'").Scan(&n))
	assert.Zero(t, n)

	loaded, err = p.Select(ctx, []any{m.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []Phone{home, mobile}, loaded[0].(*Member).Phones)

	require.NoError(t, p.Delete(ctx, []any{m}))
	assert.Zero(t, count(t, db, "members_phones"))
	assert.Zero(t, count(t, db, "members"))
}

func TestPersistTablePerClass(t *testing.T) {
	t.Parallel()
	_, p, db := openSQLite(t, "per_class", vehicles(tablePerClass))
	ctx := context.Background()

	bike := &Bike{Vehicle: Vehicle{ID: 1, Wheels: 2}, Gears: 21}
	truck := &Truck{Vehicle: Vehicle{ID: 2, Wheels: 6}, Load: 7.5}
	plain := &Vehicle{ID: 3, Wheels: 4}
	require.NoError(t, p.Insert(ctx, []any{bike, truck, plain}))
	for _, table := range []string{"vehicles", "bikes", "trucks"} {
		assert.Equal(t, 1, count(t, db, table), table)
	}
	var wheels, gears int
	require.NoError(t, db.QueryRow("SELECT wheels, gears FROM bikes WHERE id = 1").Scan(&wheels, &gears))
	assert.Equal(t, 2, wheels)
	assert.Equal(t, 21, gears)

	loaded, err := p.Select(ctx, []any{3, 1, 2})
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	require.IsType(t, &Vehicle{}, loaded[0])
	assert.Equal(t, 4, loaded[0].(*Vehicle).Wheels)
	require.IsType(t, &Bike{}, loaded[1])
	assert.Equal(t, 21, loaded[1].(*Bike).Gears)
	assert.Equal(t, 2, loaded[1].(*Bike).Wheels)
	require.IsType(t, &Truck{}, loaded[2])
	assert.Equal(t, 7.5, loaded[2].(*Truck).Load)

	truck.Load = 9
	require.NoError(t, p.Persist(ctx, []any{truck}))
	var load float64
	require.NoError(t, db.QueryRow("SELECT load FROM trucks WHERE id = 2").Scan(&load))
	assert.Equal(t, 9.0, load)

	require.NoError(t, p.Delete(ctx, []any{truck}))
	assert.Zero(t, count(t, db, "trucks"))
	assert.Equal(t, 1, count(t, db, "vehicles"))
}

func TestPersistNestedJoined(t *testing.T) {
	t.Parallel()
	_, p, db := openSQLite(t, "nested", nestedVehicles())
	ctx := context.Background()

	ebike := &EBike{Bike: Bike{Vehicle: Vehicle{ID: 1, Wheels: 2}, Gears: 7}, Battery: 500}
	bike := &Bike{Vehicle: Vehicle{ID: 2, Wheels: 2}, Gears: 3}
	truck := &Truck{Vehicle: Vehicle{ID: 3, Wheels: 6}, Load: 2}
	require.NoError(t, p.Insert(ctx, []any{ebike, bike, truck}))
	for table, n := range map[string]int{"vehicles": 3, "bikes": 2, "ebikes": 1, "trucks": 1} {
		assert.Equal(t, n, count(t, db, table), table)
	}

	loaded, err := p.Select(ctx, []any{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	got, ok := loaded[0].(*EBike)
	require.True(t, ok, "%T", loaded[0])
	assert.Equal(t, 500, got.Battery)
	assert.Equal(t, 7, got.Gears)
	assert.Equal(t, 2, got.Wheels)
	require.IsType(t, &Bike{}, loaded[1])
	assert.Equal(t, 3, loaded[1].(*Bike).Gears)
	require.IsType(t, &Truck{}, loaded[2])

	ebike.Battery, ebike.Gears = 450, 8
	require.NoError(t, p.Persist(ctx, []any{ebike}))
	var battery, gears int
	require.NoError(t, db.QueryRow("SELECT battery FROM ebikes WHERE id = 1").Scan(&battery))
	require.NoError(t, db.QueryRow("SELECT gears FROM bikes WHERE id = 1").Scan(&gears))
	assert.Equal(t, 450, battery)
	assert.Equal(t, 8, gears)

	require.NoError(t, p.Delete(ctx, []any{ebike}))
	for table, n := range map[string]int{"vehicles": 2, "bikes": 1, "ebikes": 0, "trucks": 1} {
		assert.Equal(t, n, count(t, db, table), table)
	}
}

func TestBuildRollbackShadows(t *testing.T) {
	t.Parallel()
	db := openDB(t, "rollback_shadows")
	b := newBuilder(t, compiler.WithDriver(dsql.OpenDB(dialect.SQLite, db)))
	engine := newModel().engine
	engines, err := b.Build(engine)
	require.NoError(t, err)
	shadows := len(engines.Strategy().Shadows())

	box := func() *schema.Entity {
		return schema.New[*Box]().
			Identify(field.ID(boxID, field.DatabaseGenerated())).
			Map(field.Map(boxLabel)).
			Relate(edge.Many(boxEngines, engine).ReverseColumn("box_id"))
	}
	_, err = b.Build(box().Indexes(index.Fields("weight")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index field weight is not a mapped property")
	assert.Len(t, engines.Strategy().Shadows(), shadows)

	migrate(t, b, db)
	ctx := context.Background()
	e := &Engine{Power: 90}
	require.NoError(t, engines.Insert(ctx, []any{e}))
	assert.NotZero(t, e.ID)
	assert.Equal(t, 1, count(t, db, "engines"))

	_, err = b.Build(box())
	require.NoError(t, err)
	assert.Len(t, engines.Strategy().Shadows(), shadows+1)
}

func TestBuilderStats(t *testing.T) {
	t.Parallel()
	db := openDB(t, "stats")
	b := newBuilder(t,
		compiler.WithDriver(dsql.OpenDB(dialect.SQLite, db)),
		compiler.WithStats(dsql.WithSlowThreshold(time.Hour)),
	)
	engines, err := b.Build(newModel().engine)
	require.NoError(t, err)
	migrate(t, b, db)
	stats := b.Stats()
	require.NotNil(t, stats)

	ctx := context.Background()
	e1, e2 := &Engine{Power: 100}, &Engine{Power: 200}
	require.NoError(t, engines.Insert(ctx, []any{e1, e2}))
	require.NoError(t, engines.UpdateByID(ctx, []any{&Engine{ID: e1.ID, Power: 150}}))
	loaded, err := engines.Select(ctx, []any{e1.ID, e2.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.NoError(t, engines.DeleteByID(ctx, []any{e2}))

	s := stats.Snapshot()
	assert.Equal(t, int64(2), s.Count(dsql.StatementInsert))
	assert.Equal(t, int64(1), s.Count(dsql.StatementUpdate))
	assert.Equal(t, int64(1), s.Count(dsql.StatementDelete))
	assert.Positive(t, s.Count(dsql.StatementSelect))
	assert.Zero(t, s.Errors)
	assert.Zero(t, s.Slow)

	// Statements of transactions started by the stats driver are counted.
	stats.Reset()
	tx, err := stats.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, engines.Insert(persister.NewContext(ctx, tx), []any{&Engine{Power: 300}}))
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(1), stats.Snapshot().Count(dsql.StatementInsert))
	assert.Equal(t, 2, count(t, db, "engines"))

	plain := newBuilder(t, compiler.WithDriver(dsql.OpenDB(dialect.SQLite, db)))
	assert.Nil(t, plain.Stats())
}
