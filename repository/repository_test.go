package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/store/memstore"
)

func TestMemberLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	// New document
	members := newMembers(client, false)
	m := members.CreateNew()
	m.Title = "Test Member"
	m.UserName = "username"
	require.NoError(t, members.Save(ctx))
	id := m.GetID()
	require.NoError(t, members.Close())

	// Load by id
	members = newMembers(client, false)
	loaded, err := members.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test Member", loaded.Title)
	assert.Equal(t, StatusAvailable, loaded.Status)

	// Update
	loaded.Title = "Selected Member"
	require.NoError(t, members.Save(ctx))

	members = newMembers(client, false)
	reloaded, err := members.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Selected Member", reloaded.Title)

	// Delete by filter
	members = newMembers(client, false)
	n, err := members.DeleteWhere(ctx, store.Where(store.Eq("title", "Selected Member")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, members.Save(ctx))

	exists, err := members.Any(ctx, store.ByID(id))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateNew(t *testing.T) {
	members := newMembers(newCountingClient(), false)

	a := members.CreateNew()
	b := members.CreateNew()

	assert.NotEmpty(t, a.GetID())
	assert.NotEqual(t, a.GetID(), b.GetID())
	assert.Nil(t, a.GetModifyDate())
	assert.True(t, members.IsNew(a))
	assert.True(t, members.HasChanges(a), "new documents have no baseline")

	tracked, ok := members.Tracked(a.GetID())
	require.True(t, ok)
	assert.Same(t, a, tracked)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	m := members.CreateNew()
	m.Title = "once"
	require.NoError(t, members.Save(ctx))

	coll := client.coll("NheaTestDb", "Member")
	require.NotNil(t, coll)
	assert.Equal(t, 1, coll.writes())

	require.NoError(t, members.Save(ctx))
	assert.Equal(t, 1, coll.writes(), "second save must not write")
	assert.False(t, members.HasChanges(m))
}

func TestIsNewFlipsOnFirstSave(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	cfg := repository.DefaultConfig()
	cfg.Now = func() time.Time { return now }
	members := repository.New[Member](memstore.New(memstore.DefaultConfig()), cfg)

	m := members.CreateNew()
	require.True(t, members.IsNew(m))
	require.NoError(t, members.Save(ctx))

	assert.False(t, members.IsNew(m))
	require.NotNil(t, m.GetModifyDate())
	assert.Equal(t, now.Truncate(time.Millisecond), *m.GetModifyDate())
}

func TestSaveWritesOnlyChangedDocuments(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	for i := 0; i < 10; i++ {
		m := seed.CreateNew()
		m.Title = "member"
		m.Status = i
	}
	require.NoError(t, seed.Save(ctx))

	coll := client.coll("NheaTestDb", "Member")
	coll.reset()

	members := newMembers(client, false)
	all, err := members.GetAll(ctx, store.Query{Sort: []store.Sort{store.Asc("status")}})
	require.NoError(t, err)
	require.Len(t, all, 10)

	for _, m := range all {
		assert.False(t, members.HasChanges(m))
	}

	changed := []*Member{all[2], all[5], all[7]}
	for _, m := range changed {
		m.Title = "renamed"
	}
	require.NoError(t, members.Save(ctx))

	assert.Equal(t, 3, coll.writes())
	assert.Equal(t, 3, coll.replaces)
	assert.Equal(t, []string{all[2].GetID(), all[5].GetID(), all[7].GetID()}, coll.written)
}

func TestDirtyDetection(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	m := seed.CreateNew()
	m.Title = "before"
	require.NoError(t, seed.Save(ctx))

	members := newMembers(client, false)
	loaded, err := members.GetByID(ctx, m.GetID())
	require.NoError(t, err)
	assert.False(t, members.HasChanges(loaded))

	loaded.Email = "test@test.com"
	assert.True(t, members.HasChanges(loaded))

	loaded.Email = ""
	assert.False(t, members.HasChanges(loaded), "reverting a change makes the document clean again")
}

func TestReadOnlyNeverWrites(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	m := seed.CreateNew()
	m.Title = "Test Member Lastname"
	require.NoError(t, seed.Save(ctx))
	id := m.GetID()

	coll := client.coll("NheaTestDb", "Member")
	coll.reset()

	ro := newMembers(client, true)
	assert.True(t, ro.ReadOnly())

	loaded, err := ro.GetByID(ctx, id)
	require.NoError(t, err)
	loaded.Title = "You shall not change"

	created := ro.CreateNew()
	created.Title = "never stored"
	ro.Add(&Member{Base: repository.Base{ID: "added"}})
	ro.Remove(loaded)

	require.NoError(t, ro.Save(ctx))
	require.NoError(t, ro.Delete(ctx, loaded))
	n, err := ro.DeleteWhere(ctx, store.All())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, coll.writes())
	state := ro.State().(repository.State)
	assert.Zero(t, state.Tracked, "read-only repositories do not track")

	members := newMembers(client, false)
	again, err := members.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test Member Lastname", again.Title)

	count, err := members.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRebindClearsSnapshots(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	for i := 0; i < 3; i++ {
		seed.CreateNew().Title = "migrate me"
	}
	require.NoError(t, seed.Save(ctx))

	members := newMembers(client, false)
	all, err := members.GetAll(ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, m := range all {
		require.False(t, members.HasChanges(m))
	}

	members.SetDatabaseName("AnotherDbName")
	members.SetCollectionName("AnotherCollectionName")
	assert.Equal(t, "AnotherDbName", members.DatabaseName())
	assert.Equal(t, "AnotherCollectionName", members.CollectionName())

	for _, m := range all {
		assert.True(t, members.HasChanges(m))
	}
	require.NoError(t, members.Save(ctx))

	target := client.coll("AnotherDbName", "AnotherCollectionName")
	require.NotNil(t, target)
	assert.Equal(t, 3, target.writes())
	assert.Equal(t, 3, target.replaces, "loaded documents are upserted into the new target")

	migrated := newMembers(client, false)
	migrated.SetDatabaseName("AnotherDbName")
	migrated.SetCollectionName("AnotherCollectionName")
	count, err := migrated.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRebindToSameNameKeepsSnapshots(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	m := seed.CreateNew()
	require.NoError(t, seed.Save(ctx))

	members := newMembers(client, false)
	loaded, err := members.GetByID(ctx, m.GetID())
	require.NoError(t, err)

	members.SetDatabaseName(members.DatabaseName())
	members.SetCollectionName("Member")
	assert.False(t, members.HasChanges(loaded))
}

func TestDefaultNames(t *testing.T) {
	members := repository.New[Member](memstore.New(memstore.Config{DefaultDatabase: "fromclient"}), repository.DefaultConfig())
	assert.Equal(t, "fromclient", members.DatabaseName())
	assert.Equal(t, "Member", members.CollectionName())

	cfg := repository.DefaultConfig()
	cfg.DatabaseName = "configured"
	cfg.CollectionName = "members"
	members = repository.New[Member](memstore.New(memstore.DefaultConfig()), cfg)
	assert.Equal(t, "configured", members.DatabaseName())
	assert.Equal(t, "members", members.CollectionName())

	members.SetCollectionName("")
	assert.Equal(t, "members", members.CollectionName(), "empty name reverts to the default")
}

func TestBindingErrorsSurfaceOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	cfg := repository.DefaultConfig()
	cfg.CollectionName = "bad/name"
	members := repository.New[Member](memstore.New(memstore.DefaultConfig()), cfg)

	_, err := members.GetByID(ctx, "x")
	assert.ErrorIs(t, err, store.ErrInvalidName)

	members.CreateNew()
	err = members.Save(ctx)
	assert.ErrorIs(t, err, store.ErrInvalidName)
}

func TestUpsertOnSave(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	members := newMembers(client, false)
	m := members.CreateNew()
	m.Title = "v1"
	require.NoError(t, members.Save(ctx))

	// Deleted by another writer.
	other := newMembers(client, false)
	_, err := other.DeleteWhere(ctx, store.ByID(m.GetID()))
	require.NoError(t, err)

	m.Title = "v2"
	require.NoError(t, members.Save(ctx))

	count, err := members.Count(ctx, store.ByID(m.GetID()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Saving again replaces, never duplicates.
	m.Title = "v3"
	require.NoError(t, members.Save(ctx))
	count, err = members.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	fresh := newMembers(client, false)
	got, err := fresh.GetByID(ctx, m.GetID())
	require.NoError(t, err)
	assert.Equal(t, "v3", got.Title)
}

func TestNewDocumentWithTakenIdentityReplaces(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	members := newMembers(client, false)
	m := members.CreateNew()
	m.Title = "first"
	require.NoError(t, members.Save(ctx))

	dup := &Member{Base: repository.Base{ID: m.GetID()}, Title: "second"}
	other := newMembers(client, false)
	other.Add(dup)
	require.NoError(t, other.Save(ctx))

	count, err := other.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := newMembers(client, false).GetByID(ctx, m.GetID())
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
}

func TestSaveStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	first := members.CreateNew()
	broken := members.CreateNew()
	last := members.CreateNew()

	boom := errors.New("connection reset")
	client.fail(broken.GetID(), boom)

	err := members.Save(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var saveErr *repository.SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, broken.GetID(), saveErr.ID)
	assert.True(t, saveErr.Insert)

	assert.False(t, members.HasChanges(first), "documents before the failure stay saved")
	assert.True(t, members.HasChanges(last), "documents after the failure are not attempted")
	assert.True(t, members.IsNew(broken), "a failed insert leaves the document new")
	assert.Nil(t, broken.ModifyDate)

	err = members.Save(ctx)
	require.ErrorAs(t, err, &saveErr)
	assert.True(t, saveErr.Insert, "the retry is still an insert")

	exists, err := members.Any(ctx, store.ByID(first.GetID()))
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = members.Any(ctx, store.ByID(last.GetID()))
	require.NoError(t, err)
	assert.False(t, exists)

	// Retrying after the failure clears writes the remainder.
	client.fail(broken.GetID(), nil)
	require.NoError(t, members.Save(ctx))
	count, err := members.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestFailedReplaceKeepsModifyDate(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	m := members.CreateNew()
	require.NoError(t, members.Save(ctx))
	saved := *m.ModifyDate

	m.Title = "changed"
	client.fail(m.GetID(), errors.New("throttled"))
	err := members.Save(ctx)

	var saveErr *repository.SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.False(t, saveErr.Insert)
	require.NotNil(t, m.ModifyDate)
	assert.True(t, saved.Equal(*m.ModifyDate))
	assert.True(t, members.HasChanges(m))
}

func TestRemoveStopsTracking(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	keep := members.CreateNew()
	dropped := members.CreateNew()
	members.Remove(dropped)

	require.NoError(t, members.Save(ctx))

	exists, err := members.Any(ctx, store.ByID(dropped.GetID()))
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = members.Any(ctx, store.ByID(keep.GetID()))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	m := members.CreateNew()
	require.NoError(t, members.Save(ctx))

	require.NoError(t, members.Delete(ctx, m))
	_, tracked := members.Tracked(m.GetID())
	assert.False(t, tracked)

	require.NoError(t, members.Save(ctx))
	_, err := members.GetByID(ctx, m.GetID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegisterReplacesInstanceButKeepsBaseline(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	m := seed.CreateNew()
	m.Title = "stored"
	require.NoError(t, seed.Save(ctx))

	members := newMembers(client, false)
	first, err := members.GetByID(ctx, m.GetID())
	require.NoError(t, err)
	second, err := members.GetByID(ctx, m.GetID())
	require.NoError(t, err)

	tracked, ok := members.Tracked(m.GetID())
	require.True(t, ok)
	assert.Same(t, second, tracked)
	assert.NotSame(t, first, tracked)

	state := members.State().(repository.State)
	assert.Equal(t, 1, state.Tracked)
	assert.Equal(t, 1, state.Snapshots)
}

func TestGetSingle(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	a := members.CreateNew()
	a.Title = "Selected Member"
	b := members.CreateNew()
	b.Title = "twin"
	c := members.CreateNew()
	c.Title = "twin"
	require.NoError(t, members.Save(ctx))

	reader := newMembers(client, false)
	got, err := reader.GetSingle(ctx, store.Where(store.Eq("title", "Selected Member")))
	require.NoError(t, err)
	assert.Equal(t, a.GetID(), got.GetID())
	assert.False(t, reader.HasChanges(got))

	_, err = reader.GetSingle(ctx, store.Where(store.Eq("title", "twin")))
	assert.ErrorIs(t, err, store.ErrNotUnique)

	_, err = reader.GetSingle(ctx, store.Where(store.Eq("title", "nobody")))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnknownFieldIsRejected(t *testing.T) {
	ctx := context.Background()
	members := newMembers(newCountingClient(), false)

	_, err := members.GetAll(ctx, store.Query{Filter: store.Where(store.Eq("nickname", "x"))})
	assert.ErrorIs(t, err, repository.ErrUnknownField)

	_, err = members.GetAll(ctx, store.Query{Sort: []store.Sort{store.Asc("nickname")}})
	assert.ErrorIs(t, err, repository.ErrUnknownField)

	_, err = members.Count(ctx, store.Where(store.Eq(store.IDField, "x")))
	assert.NoError(t, err)
	_, err = members.Count(ctx, store.Where(store.Eq("modify_date", nil)))
	assert.NoError(t, err)
}

func TestPagingAndDefaults(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()

	seed := newMembers(client, false)
	for i := 0; i < 7; i++ {
		m := seed.CreateNew()
		m.Status = i
		m.Title = "member"
	}
	require.NoError(t, seed.Save(ctx))

	cfg := repository.DefaultConfig()
	cfg.DatabaseName = "NheaTestDb"
	cfg.DefaultFilter = store.Where(store.Gte("status", 2))
	cfg.DefaultSort = []store.Sort{store.Desc("status")}
	members := repository.New[Member](client, cfg)

	page, err := members.GetPage(ctx, store.Query{}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.Pages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, 4, page.Items[0].Status)
	assert.Equal(t, 3, page.Items[1].Status)

	page, err = members.GetPage(ctx, store.Query{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Items[0].Status)

	n, err := members.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = members.GetPage(ctx, store.Query{}, 0, 0)
	assert.ErrorIs(t, err, store.ErrInvalidFilter)
}

func TestAllAndCountAgree(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)
	for i := 0; i < 4; i++ {
		members.CreateNew()
	}
	require.NoError(t, members.Save(ctx))

	all, err := members.GetAll(ctx, store.Query{})
	require.NoError(t, err)
	count, err := members.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Equal(t, int64(len(all)), count)
}

func TestRefreshNotSupported(t *testing.T) {
	members := newMembers(newCountingClient(), false)
	err := members.Refresh(context.Background(), members.CreateNew())
	assert.ErrorIs(t, err, repository.ErrNotSupported)
}

func TestCloseEmptiesIdentityMap(t *testing.T) {
	members := newMembers(newCountingClient(), false)
	m := members.CreateNew()
	require.NoError(t, members.Close())

	_, ok := members.Tracked(m.GetID())
	assert.False(t, ok)
	require.NoError(t, members.Save(context.Background()))
}

func TestAddAll(t *testing.T) {
	ctx := context.Background()
	client := newCountingClient()
	members := newMembers(client, false)

	docs := []*Member{
		{Base: repository.Base{ID: "a"}, Title: "a"},
		{Base: repository.Base{ID: "b"}, Title: "b"},
	}
	members.AddAll(docs)
	require.NoError(t, members.Save(ctx))

	coll := client.coll("NheaTestDb", "Member")
	assert.Equal(t, 2, coll.inserts)
	for _, d := range docs {
		assert.False(t, members.IsNew(d))
	}
}
