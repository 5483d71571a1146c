package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
)

// RunRepositoryTests checks the behaviour every storage backend must share.
// newRepos must return empty repositories.
func RunRepositoryTests(t *testing.T, newRepos func(t *testing.T) Repos) {
	ctx := context.Background()

	t.Run("access: lookups", func(t *testing.T) {
		repos := newRepos(t)
		adm := CreateAdmin(t, repos.Access, "root@test.in", access.RoleSuperAdmin)
		guard := CreateGuard(t, repos.Access, "gate@test.in", "soc-1")

		got, err := repos.Access.GetAdminByEmail(ctx, "root@test.in")
		require.NoError(t, err)
		assert.Equal(t, adm.ID, got.ID)
		assert.Equal(t, access.RoleSuperAdmin, got.Role)

		gotGuard, err := repos.Access.GetGuardByEmail(ctx, "gate@test.in")
		require.NoError(t, err)
		assert.Equal(t, guard.ID, gotGuard.ID)

		_, err = repos.Access.GetAdminByEmail(ctx, "gate@test.in")
		assert.True(t, core.IsNotFound(err))
		_, err = repos.Access.GetGuardByEmail(ctx, "nobody@test.in")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("society: names are case insensitive", func(t *testing.T) {
		repos := newRepos(t)
		soc := CreateSociety(t, repos.Society, "Green Park", "a@test.in", "Flat 1", "Flat 2")
		CreateSociety(t, repos.Society, "Blue Hills", "b@test.in")

		got, err := repos.Society.GetSocietyByName(ctx, "  green PARK ")
		require.NoError(t, err)
		assert.Equal(t, soc.ID, got.ID)
		assert.Equal(t, []string{"Flat 1", "Flat 2"}, got.Flats)

		_, err = repos.Society.GetSocietyByName(ctx, "Red Fort")
		assert.True(t, core.IsNotFound(err))

		names, err := repos.Society.SocietyNamesByAdmin(ctx, "a@test.in")
		require.NoError(t, err)
		assert.Equal(t, []string{"Green Park"}, names)

		socs, err := repos.Society.QuerySocieties(ctx, access.SocietiesScope("GREEN park"))
		require.NoError(t, err)
		require.Len(t, socs, 1)
		assert.Equal(t, soc.ID, socs[0].ID)

		socs, err = repos.Society.QuerySocieties(ctx, access.AllSocieties)
		require.NoError(t, err)
		assert.Len(t, socs, 2)
	})

	t.Run("society: owners", func(t *testing.T) {
		repos := newRepos(t)
		green := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		blue := CreateSociety(t, repos.Society, "Blue Hills", "b@test.in")
		o1 := CreateOwner(t, repos.Society, green, "A-1", "o1@test.in")
		CreateOwner(t, repos.Society, blue, "B-1", "o2@test.in")

		got, err := repos.Society.GetOwnerByEmail(ctx, "o1@test.in")
		require.NoError(t, err)
		assert.Equal(t, o1.ID, got.ID)

		got, err = repos.Society.GetOwnerByID(ctx, o1.ID)
		require.NoError(t, err)
		assert.Equal(t, "o1@test.in", got.Email)

		_, err = repos.Society.GetOwnerByID(ctx, "not-an-id")
		assert.True(t, core.IsNotFound(err))

		owners, err := repos.Society.QueryOwners(ctx, access.SocietiesScope("green park"))
		require.NoError(t, err)
		require.Len(t, owners, 1)
		assert.Equal(t, o1.ID, owners[0].ID)

		owners, err = repos.Society.QueryOwners(ctx, access.SocietiesScope())
		require.NoError(t, err)
		assert.Empty(t, owners)
	})

	t.Run("society: update and count", func(t *testing.T) {
		repos := newRepos(t)
		green := CreateSociety(t, repos.Society, "Green Park", "a@test.in", "Flat 1")
		CreateSociety(t, repos.Society, "Blue Hills", "b@test.in")
		owner := CreateOwner(t, repos.Society, green, "Flat 1", "o1@test.in")

		count, err := repos.Society.CountSocieties(ctx, access.AllSocieties)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		count, err = repos.Society.CountSocieties(ctx, access.SocietiesScope("green park"))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		count, err = repos.Society.CountSocieties(ctx, access.SocietiesScope())
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		got, err := repos.Society.GetSocietyByID(ctx, green.ID)
		require.NoError(t, err)
		assert.Equal(t, "Green Park", got.Name)

		green.Location = "Sector 9"
		green.Flats = []string{"Flat 1", "Flat 2"}
		green.AdminEmail = "c@test.in"
		updated, err := repos.Society.UpdateSociety(ctx, green)
		require.NoError(t, err)
		assert.Equal(t, "Green Park", updated.Name)
		assert.Equal(t, "Sector 9", updated.Location)
		assert.Equal(t, []string{"Flat 1", "Flat 2"}, updated.Flats)
		assert.Equal(t, "c@test.in", updated.AdminEmail)

		// owners follow the new admin
		got2, err := repos.Society.GetOwnerByID(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "c@test.in", got2.AdminEmail)
		names, err := repos.Society.SocietyNamesByAdmin(ctx, "a@test.in")
		require.NoError(t, err)
		assert.Empty(t, names)

		_, err = repos.Society.GetSocietyByID(ctx, "not-an-id")
		assert.True(t, core.IsNotFound(err))
		green.ID = "not-an-id"
		_, err = repos.Society.UpdateSociety(ctx, green)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("society: owner update and delete", func(t *testing.T) {
		repos := newRepos(t)
		green := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		o1 := CreateOwner(t, repos.Society, green, "A-1", "o1@test.in")
		o2 := CreateOwner(t, repos.Society, green, "A-2", "o2@test.in")
		for _, o := range []society.FlatOwner{o1, o2} {
			_, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(o, Date(2024, 1, 10)))
			require.NoError(t, err)
		}

		o1.FlatNumber = "A-3"
		o1.OwnerName = "Asha"
		o1.Contact = "98450"
		o1.Profession = "Doctor"
		updated, err := repos.Society.UpdateOwner(ctx, o1)
		require.NoError(t, err)
		assert.Equal(t, "A-3", updated.FlatNumber)
		assert.Equal(t, "Asha", updated.OwnerName)
		assert.Equal(t, "o1@test.in", updated.Email)
		got, err := repos.Society.GetOwnerByEmail(ctx, "o1@test.in")
		require.NoError(t, err)
		assert.Equal(t, "Doctor", got.Profession)

		require.NoError(t, repos.Society.DeleteOwner(ctx, o1.ID))
		_, err = repos.Society.GetOwnerByID(ctx, o1.ID)
		assert.True(t, core.IsNotFound(err))
		assert.True(t, core.IsNotFound(repos.Society.DeleteOwner(ctx, o1.ID)))

		// the owner's records are gone, the neighbour's are kept
		count, err := repos.Maintenance.CountRecords(ctx, access.AllSocieties, maintenance.QueryFilter{OwnerID: o1.ID})
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		count, err = repos.Maintenance.CountRecords(ctx, access.AllSocieties, maintenance.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		o1.ID = "not-an-id"
		_, err = repos.Society.UpdateOwner(ctx, o1)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("society: delete cascades", func(t *testing.T) {
		repos := newRepos(t)
		green := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		blue := CreateSociety(t, repos.Society, "Blue Hills", "b@test.in")
		o1 := CreateOwner(t, repos.Society, green, "A-1", "o1@test.in")
		o2 := CreateOwner(t, repos.Society, blue, "B-1", "o2@test.in")
		for _, o := range []society.FlatOwner{o1, o2} {
			_, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(o, Date(2024, 1, 10)))
			require.NoError(t, err)
		}

		require.NoError(t, repos.Society.DeleteSociety(ctx, green.ID))
		_, err := repos.Society.GetSocietyByName(ctx, "Green Park")
		assert.True(t, core.IsNotFound(err))
		_, err = repos.Society.GetOwnerByEmail(ctx, "o1@test.in")
		assert.True(t, core.IsNotFound(err))
		assert.True(t, core.IsNotFound(repos.Society.DeleteSociety(ctx, green.ID)))

		recs, err := repos.Maintenance.QueryRecords(ctx, access.AllSocieties, maintenance.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, o2.ID, recs[0].OwnerID)

		// the name is free again
		CreateSociety(t, repos.Society, "Green Park", "a@test.in")
	})

	t.Run("maintenance: find or create is idempotent", func(t *testing.T) {
		repos := newRepos(t)
		soc := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		owner := CreateOwner(t, repos.Society, soc, "A-1", "o1@test.in")

		first, created, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 1, 10)))
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 1, 10)))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		count, err := repos.Maintenance.CountRecords(ctx, access.AllSocieties, maintenance.QueryFilter{OwnerID: owner.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("maintenance: concurrent find or create yields one record", func(t *testing.T) {
		repos := newRepos(t)
		soc := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		owner := CreateOwner(t, repos.Society, soc, "A-1", "o1@test.in")

		const n = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = make(map[string]struct{})
			created int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, ok, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 3, 10)))
				assert.NoError(t, err)
				mu.Lock()
				defer mu.Unlock()
				ids[rec.ID] = struct{}{}
				if ok {
					created++
				}
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, created)
	})

	t.Run("maintenance: paid records are frozen", func(t *testing.T) {
		repos := newRepos(t)
		soc := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		owner := CreateOwner(t, repos.Society, soc, "A-1", "o1@test.in")
		rec, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 1, 10)))
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Millisecond)
		rec, err = repos.Maintenance.UpdatePenalty(ctx, rec.ID, maintenance.StatusOverdue, decimal.NewFromInt(100), now)
		require.NoError(t, err)
		assert.Equal(t, maintenance.StatusOverdue, rec.Status)
		assert.True(t, decimal.NewFromInt(100).Equal(rec.Penalty))

		paidAt := Date(2024, 1, 17)
		rec, err = repos.Maintenance.MarkPaid(ctx, rec.ID, paidAt, decimal.NewFromInt(1100), decimal.NewFromInt(100), now)
		require.NoError(t, err)
		assert.Equal(t, maintenance.StatusPaid, rec.Status)
		require.NotNil(t, rec.PaymentDate)
		assert.True(t, paidAt.Equal(*rec.PaymentDate))
		assert.True(t, decimal.NewFromInt(1100).Equal(rec.Amount))

		_, err = repos.Maintenance.MarkPaid(ctx, rec.ID, paidAt, decimal.NewFromInt(1200), decimal.NewFromInt(200), now)
		assert.ErrorIs(t, err, maintenance.ErrAlreadyPaid)
		_, err = repos.Maintenance.UpdatePenalty(ctx, rec.ID, maintenance.StatusOverdue, decimal.NewFromInt(200), now)
		assert.ErrorIs(t, err, maintenance.ErrAlreadyPaid)

		got, err := repos.Maintenance.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(got.Penalty))
	})

	t.Run("maintenance: query filters, scope and ordering", func(t *testing.T) {
		repos := newRepos(t)
		green := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		blue := CreateSociety(t, repos.Society, "Blue Hills", "b@test.in")
		o1 := CreateOwner(t, repos.Society, green, "A-1", "o1@test.in")
		o2 := CreateOwner(t, repos.Society, blue, "B-1", "o2@test.in")

		jan, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(o1, Date(2024, 1, 10)))
		require.NoError(t, err)
		feb, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(o1, Date(2024, 2, 10)))
		require.NoError(t, err)
		blueJan, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(o2, Date(2024, 1, 10)))
		require.NoError(t, err)
		_, err = repos.Maintenance.MarkPaid(ctx, jan.ID, Date(2024, 1, 5), decimal.NewFromInt(1000), decimal.Zero, time.Now().UTC())
		require.NoError(t, err)

		ids := func(recs []maintenance.Record) []string {
			res := make([]string, 0, len(recs))
			for _, r := range recs {
				res = append(res, r.ID)
			}
			return res
		}
		dueAsc := core.DBOrdering{Field: "due_date", Ascending: true}

		tests := []struct {
			name   string
			scope  access.Scope
			filter maintenance.QueryFilter
			want   []string
		}{
			{name: "all", scope: access.AllSocieties, want: []string{jan.ID, blueJan.ID, feb.ID}},
			{name: "scoped", scope: access.SocietiesScope("Green Park"), want: []string{jan.ID, feb.ID}},
			{name: "empty scope", scope: access.SocietiesScope(), want: []string{}},
			{name: "society filter", scope: access.AllSocieties, filter: maintenance.QueryFilter{Society: "blue hills"}, want: []string{blueJan.ID}},
			{
				name: "society filter outside scope", scope: access.SocietiesScope("Green Park"),
				filter: maintenance.QueryFilter{Society: "Blue Hills"}, want: []string{},
			},
			{
				name: "status", scope: access.AllSocieties,
				filter: maintenance.QueryFilter{Statuses: []maintenance.Status{maintenance.StatusPending}}, want: []string{blueJan.ID, feb.ID},
			},
			{name: "owner", scope: access.AllSocieties, filter: maintenance.QueryFilter{OwnerID: o2.ID}, want: []string{blueJan.ID}},
			{
				name: "due range", scope: access.AllSocieties,
				filter: maintenance.QueryFilter{DueFrom: Date(2024, 2, 1), DueTo: Date(2024, 2, 29)}, want: []string{feb.ID},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				recs, err := repos.Maintenance.QueryRecords(ctx, tt.scope, tt.filter, dueAsc)
				require.NoError(t, err)
				// records sharing a due date are ordered by id
				assert.ElementsMatch(t, tt.want, ids(recs))

				count, err := repos.Maintenance.CountRecords(ctx, tt.scope, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, len(tt.want), count)
			})
		}

		recs, err := repos.Maintenance.QueryRecords(ctx, access.AllSocieties, maintenance.QueryFilter{}, dueAsc)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, feb.ID, recs[2].ID)

		recs, err = repos.Maintenance.QueryRecords(ctx, access.SocietiesScope("green park"), maintenance.QueryFilter{},
			core.DBOrdering{Field: "due_date"})
		require.NoError(t, err)
		assert.Equal(t, []string{feb.ID, jan.ID}, ids(recs))
	})

	t.Run("maintenance: update record", func(t *testing.T) {
		repos := newRepos(t)
		soc := CreateSociety(t, repos.Society, "Green Park", "a@test.in")
		owner := CreateOwner(t, repos.Society, soc, "A-1", "o1@test.in")
		jan, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 1, 10)))
		require.NoError(t, err)
		feb, _, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 2, 10)))
		require.NoError(t, err)

		// moving february onto january collides
		feb.DueDate = Date(2024, 1, 15)
		feb.Period = "2024-01"
		_, err = repos.Maintenance.UpdateRecord(ctx, feb)
		assert.ErrorIs(t, err, maintenance.ErrPeriodTaken)

		paidAt := Date(2024, 1, 9)
		jan.Status = maintenance.StatusPaid
		jan.PaymentDate = &paidAt
		jan.Penalty = decimal.NewFromInt(50)
		jan.Amount = decimal.NewFromInt(1050)
		updated, err := repos.Maintenance.UpdateRecord(ctx, jan)
		require.NoError(t, err)
		assert.Equal(t, maintenance.StatusPaid, updated.Status)
		assert.True(t, decimal.NewFromInt(1050).Equal(updated.Amount))

		// period moved: the old month is free again
		jan.DueDate = Date(2023, 12, 10)
		jan.Period = "2023-12"
		_, err = repos.Maintenance.UpdateRecord(ctx, jan)
		require.NoError(t, err)
		_, created, err := repos.Maintenance.FindOrCreateRecord(ctx, NewRecord(owner, Date(2024, 1, 10)))
		require.NoError(t, err)
		assert.True(t, created)

		_, err = repos.Maintenance.GetRecord(ctx, "unknown")
		assert.True(t, core.IsNotFound(err))
	})
}
