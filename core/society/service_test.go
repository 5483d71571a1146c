package society_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	testutil "github.com/trezcool/entrykart/tests"
)

var (
	superAdmin = access.Principal{ID: "s1", Email: "super@test.in", Role: access.RoleSuperAdmin}
	admin      = access.Principal{ID: "a1", Email: "admin@test.in", Role: access.RoleAdmin}
	guard      = access.Principal{ID: "g1", Email: "gate@test.in", Role: access.RoleSecurityGuard}
)

func newService() (society.Service, testutil.Repos) {
	_, repos := testutil.InMemRepos()
	return society.NewService(repos.Society, testutil.NewValidator()), repos
}

func TestService_CreateSociety(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	soc, err := svc.CreateSociety(ctx, admin, society.NewSociety{Name: " Green Park ", Location: "Pune", TotalFlats: 3, AdminEmail: "someone@test.in"})
	require.NoError(t, err)
	assert.NotEmpty(t, soc.ID)
	assert.Equal(t, "Green Park", soc.Name)
	assert.Equal(t, "admin@test.in", soc.AdminEmail, "scoped admins own what they create")
	assert.Equal(t, []string{"Flat 1", "Flat 2", "Flat 3"}, soc.Flats)

	soc, err = svc.CreateSociety(ctx, superAdmin, society.NewSociety{Name: "Blue Hills", Location: "Mumbai", AdminEmail: "Other@Test.in"})
	require.NoError(t, err)
	assert.Equal(t, "other@test.in", soc.AdminEmail)
	assert.Empty(t, soc.Flats)

	soc, err = svc.CreateSociety(ctx, superAdmin, society.NewSociety{Name: "Lake View", Location: "Pune"})
	require.NoError(t, err)
	assert.Equal(t, "super@test.in", soc.AdminEmail)

	tests := []struct {
		name    string
		p       access.Principal
		ns      society.NewSociety
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "guards cannot create", p: guard, ns: society.NewSociety{Name: "Gate", Location: "Pune"},
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, access.ErrForbidden) },
		},
		{
			name: "duplicate name", p: superAdmin, ns: society.NewSociety{Name: "GREEN PARK", Location: "Pune"},
			wantErr: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.ErrorIs(t, vErr.Err, society.ErrSocietyExists)
			},
		},
		{
			name: "missing location", p: admin, ns: society.NewSociety{Name: "Nowhere"},
			wantErr: func(t *testing.T, err error) {
				var fErrs validator.ValidationErrors
				assert.ErrorAs(t, err, &fErrs)
			},
		},
		{
			name: "too many flats", p: admin, ns: society.NewSociety{Name: "Tower", Location: "Pune", TotalFlats: 10001},
			wantErr: func(t *testing.T, err error) {
				var fErrs validator.ValidationErrors
				assert.ErrorAs(t, err, &fErrs)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSociety(ctx, tt.p, tt.ns)
			tt.wantErr(t, err)
		})
	}

	all, err := svc.QuerySocieties(ctx, access.AllSocieties)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := svc.QuerySocieties(ctx, access.SocietiesScope("green park"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Green Park", mine[0].Name)

	got, err := svc.GetSociety(ctx, "  green PARK ")
	require.NoError(t, err)
	assert.Equal(t, mine[0].ID, got.ID)

	_, err = svc.GetSociety(ctx, "Atlantis")
	assert.ErrorIs(t, err, society.ErrSocietyNotFound)
}

func TestService_CreateOwner(t *testing.T) {
	ctx := context.Background()
	svc, repos := newService()
	green := testutil.CreateSociety(t, repos.Society, "Green Park", "admin@test.in", "Flat 1", "Flat 2")
	testutil.CreateSociety(t, repos.Society, "Open Plot", "other@test.in")

	owner, err := svc.CreateOwner(ctx, society.NewOwner{
		SocietyName: "green park",
		FlatNumber:  "Flat 1",
		OwnerName:   "Asha Rao",
		Email:       " Asha@Test.in ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, owner.ID)
	assert.Equal(t, green.Name, owner.SocietyName)
	assert.Equal(t, "asha@test.in", owner.Email)
	assert.Equal(t, "admin@test.in", owner.AdminEmail)

	// societies without a flat list accept any flat number
	_, err = svc.CreateOwner(ctx, society.NewOwner{SocietyName: "Open Plot", FlatNumber: "B-12/3", OwnerName: "Ravi", Email: "ravi@test.in"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		no        society.NewOwner
		wantCause error
	}{
		{
			name:      "unknown society",
			no:        society.NewOwner{SocietyName: "Atlantis", FlatNumber: "Flat 1", OwnerName: "X", Email: "x@test.in"},
			wantCause: society.ErrUnknownSociety,
		},
		{
			name:      "unknown flat",
			no:        society.NewOwner{SocietyName: "Green Park", FlatNumber: "Flat 9", OwnerName: "X", Email: "x@test.in"},
			wantCause: society.ErrUnknownFlat,
		},
		{
			name:      "email taken",
			no:        society.NewOwner{SocietyName: "Green Park", FlatNumber: "Flat 2", OwnerName: "X", Email: "ASHA@test.in"},
			wantCause: society.ErrOwnerExists,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOwner(ctx, tt.no)
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.ErrorIs(t, vErr.Err, tt.wantCause)
		})
	}

	t.Run("invalid flat number", func(t *testing.T) {
		_, err := svc.CreateOwner(ctx, society.NewOwner{SocietyName: "Green Park", FlatNumber: "Flat #1", OwnerName: "X", Email: "x@test.in"})
		var fErrs validator.ValidationErrors
		require.ErrorAs(t, err, &fErrs)
		assert.Equal(t, "flat_number", fErrs[0].Field())
	})

	byEmail, err := svc.GetOwnerByEmail(ctx, "ASHA@test.in")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, byEmail.ID)

	_, err = svc.GetOwnerByEmail(ctx, "nobody@test.in")
	assert.True(t, core.IsNotFound(err))

	_, err = svc.GetOwnerByEmail(ctx, " ")
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	owners, err := svc.QueryOwners(ctx, access.SocietiesScope("Green Park"))
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, owner.ID, owners[0].ID)
}

func TestService_UpdateSociety(t *testing.T) {
	ctx := context.Background()
	svc, repos := newService()
	green := testutil.CreateSociety(t, repos.Society, "Green Park", "admin@test.in", "Flat 1", "Flat 2", "Flat 3")
	blue := testutil.CreateSociety(t, repos.Society, "Blue Hills", "other@test.in")
	testutil.CreateOwner(t, repos.Society, green, "Flat 2", "owner@test.in")
	scope := access.SocietiesScope("Green Park")
	strPtr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }

	tests := []struct {
		name    string
		p       access.Principal
		scope   access.Scope
		id      string
		us      society.UpdateSociety
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "guards cannot update", p: guard, scope: access.AllSocieties, id: green.ID,
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, access.ErrForbidden) },
		},
		{
			name: "out of scope", p: admin, scope: scope, id: blue.ID, us: society.UpdateSociety{Location: strPtr("Thane")},
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, access.ErrOutOfScope) },
		},
		{
			name: "unknown society", p: admin, scope: scope, id: "nope",
			wantErr: func(t *testing.T, err error) { assert.True(t, core.IsNotFound(err)) },
		},
		{
			name: "scoped admins cannot hand over", p: admin, scope: scope, id: green.ID,
			us:      society.UpdateSociety{AdminEmail: strPtr("other@test.in")},
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, access.ErrForbidden) },
		},
		{
			name: "empty location", p: admin, scope: scope, id: green.ID, us: society.UpdateSociety{Location: strPtr(" ")},
			wantErr: func(t *testing.T, err error) {
				var fErrs validator.ValidationErrors
				require.ErrorAs(t, err, &fErrs)
				assert.Equal(t, "location", fErrs[0].Field())
			},
		},
		{
			name: "owner beyond the new flats", p: admin, scope: scope, id: green.ID, us: society.UpdateSociety{TotalFlats: intPtr(1)},
			wantErr: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.ErrorIs(t, vErr.Err, society.ErrFlatOccupied)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateSociety(ctx, tt.p, tt.scope, tt.id, tt.us)
			tt.wantErr(t, err)
		})
	}

	soc, err := svc.UpdateSociety(ctx, admin, scope, green.ID, society.UpdateSociety{
		Location:   strPtr(" Baner, Pune "),
		TotalFlats: intPtr(2),
		AdminEmail: strPtr("ADMIN@test.in"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Baner, Pune", soc.Location)
	assert.Equal(t, []string{"Flat 1", "Flat 2"}, soc.Flats)
	assert.Equal(t, "admin@test.in", soc.AdminEmail)

	soc, err = svc.UpdateSociety(ctx, superAdmin, access.AllSocieties, green.ID, society.UpdateSociety{AdminEmail: strPtr("other@test.in")})
	require.NoError(t, err)
	assert.Equal(t, "other@test.in", soc.AdminEmail)
	owner, err := svc.GetOwnerByEmail(ctx, "owner@test.in")
	require.NoError(t, err)
	assert.Equal(t, "other@test.in", owner.AdminEmail)

	count, err := svc.CountSocieties(ctx, access.AllSocieties)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = svc.CountSocieties(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_DeleteSociety(t *testing.T) {
	ctx := context.Background()
	svc, repos := newService()
	green := testutil.CreateSociety(t, repos.Society, "Green Park", "admin@test.in")
	owner := testutil.CreateOwner(t, repos.Society, green, "Flat 1", "owner@test.in")
	_, _, err := repos.Maintenance.FindOrCreateRecord(ctx, testutil.NewRecord(owner, testutil.Date(2024, 1, 10)))
	require.NoError(t, err)

	err = svc.DeleteSociety(ctx, guard, access.AllSocieties, green.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	err = svc.DeleteSociety(ctx, admin, access.SocietiesScope("Blue Hills"), green.ID)
	assert.ErrorIs(t, err, access.ErrOutOfScope)

	require.NoError(t, svc.DeleteSociety(ctx, admin, access.SocietiesScope("Green Park"), green.ID))
	_, err = svc.GetSociety(ctx, "Green Park")
	assert.True(t, core.IsNotFound(err))
	_, err = svc.GetOwnerByEmail(ctx, "owner@test.in")
	assert.True(t, core.IsNotFound(err))
	count, err := repos.Maintenance.CountRecords(ctx, access.AllSocieties, maintenance.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	err = svc.DeleteSociety(ctx, superAdmin, access.AllSocieties, green.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateOwner(t *testing.T) {
	ctx := context.Background()
	svc, repos := newService()
	green := testutil.CreateSociety(t, repos.Society, "Green Park", "admin@test.in", "Flat 1", "Flat 2")
	owner := testutil.CreateOwner(t, repos.Society, green, "Flat 1", "owner@test.in")
	scope := access.SocietiesScope("Green Park")
	strPtr := func(s string) *string { return &s }

	tests := []struct {
		name    string
		p       access.Principal
		scope   access.Scope
		id      string
		uo      society.UpdateOwner
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "guards cannot update", p: guard, scope: access.AllSocieties, id: owner.ID,
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, access.ErrForbidden) },
		},
		{
			name: "out of scope", p: admin, scope: access.SocietiesScope("Blue Hills"), id: owner.ID,
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, access.ErrOutOfScope) },
		},
		{
			name: "unknown owner", p: admin, scope: scope, id: "nope",
			wantErr: func(t *testing.T, err error) { assert.True(t, core.IsNotFound(err)) },
		},
		{
			name: "unknown flat", p: admin, scope: scope, id: owner.ID, uo: society.UpdateOwner{FlatNumber: strPtr("Flat 9")},
			wantErr: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.ErrorIs(t, vErr.Err, society.ErrUnknownFlat)
			},
		},
		{
			name: "empty name", p: admin, scope: scope, id: owner.ID, uo: society.UpdateOwner{OwnerName: strPtr("")},
			wantErr: func(t *testing.T, err error) {
				var fErrs validator.ValidationErrors
				require.ErrorAs(t, err, &fErrs)
				assert.Equal(t, "owner_name", fErrs[0].Field())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateOwner(ctx, tt.p, tt.scope, tt.id, tt.uo)
			tt.wantErr(t, err)
		})
	}

	updated, err := svc.UpdateOwner(ctx, admin, scope, owner.ID, society.UpdateOwner{
		FlatNumber: strPtr("Flat 2"),
		OwnerName:  strPtr(" Asha Rao "),
		Contact:    strPtr("98450 12345"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Flat 2", updated.FlatNumber)
	assert.Equal(t, "Asha Rao", updated.OwnerName)
	assert.Equal(t, "98450 12345", updated.Contact)
	assert.Equal(t, "owner@test.in", updated.Email)

	stored, err := svc.GetOwnerByEmail(ctx, "owner@test.in")
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestService_DeleteOwner(t *testing.T) {
	ctx := context.Background()
	svc, repos := newService()
	green := testutil.CreateSociety(t, repos.Society, "Green Park", "admin@test.in")
	owner := testutil.CreateOwner(t, repos.Society, green, "Flat 1", "owner@test.in")
	neighbour := testutil.CreateOwner(t, repos.Society, green, "Flat 2", "next@test.in")
	for _, o := range []society.FlatOwner{owner, neighbour} {
		_, _, err := repos.Maintenance.FindOrCreateRecord(ctx, testutil.NewRecord(o, testutil.Date(2024, 1, 10)))
		require.NoError(t, err)
	}

	err := svc.DeleteOwner(ctx, guard, access.AllSocieties, owner.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	err = svc.DeleteOwner(ctx, admin, access.SocietiesScope(), owner.ID)
	assert.ErrorIs(t, err, access.ErrOutOfScope)

	require.NoError(t, svc.DeleteOwner(ctx, admin, access.SocietiesScope("Green Park"), owner.ID))
	_, err = svc.GetOwnerByEmail(ctx, "owner@test.in")
	assert.True(t, core.IsNotFound(err))

	recs, err := repos.Maintenance.QueryRecords(ctx, access.AllSocieties, maintenance.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, neighbour.ID, recs[0].OwnerID)

	err = svc.DeleteOwner(ctx, admin, access.SocietiesScope("Green Park"), owner.ID)
	assert.True(t, core.IsNotFound(err))
}
