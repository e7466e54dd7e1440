package participant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/surfbooking/internal/model"
)

func TestRoster_SetCounts(t *testing.T) {
	r := NewRoster(RenameDetaches)
	calls := 0
	r.OnChange(func() { calls++ })

	require.NoError(t, r.SetCounts(2, 1))
	adults, children := r.Counts()
	assert.Equal(t, 2, adults)
	assert.Equal(t, 1, children)
	assert.Equal(t, 1, calls)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, model.AgeAdult, all[0].AgeBracket)
	assert.Equal(t, model.AgeChild, all[2].AgeBracket)

	require.NoError(t, r.SetCounts(1, 1))
	remaining := r.All()
	require.Len(t, remaining, 2)
	assert.Equal(t, all[0].ID, remaining[0].ID, "shrinking drops the last adult")
	assert.Equal(t, all[2].ID, remaining[1].ID)
	assert.Equal(t, 2, calls)

	require.NoError(t, r.SetCounts(1, 1))
	assert.Equal(t, 2, calls, "no change, no notification")

	assert.Error(t, r.SetCounts(-1, 0))
}

func TestRoster_RenamePolicies(t *testing.T) {
	name := "Carla B."

	detaching := NewRoster(RenameDetaches)
	carla := detaching.Add(model.CategoryAdult, "Carla")
	renamed, err := detaching.Update(carla.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.NotEqual(t, carla.ID, renamed.ID)
	assert.False(t, detaching.IDs().Contains(carla.ID))

	keeping := NewRoster(RenameKeepsIdentity)
	carla = keeping.Add(model.CategoryAdult, "Carla")
	renamed, err = keeping.Update(carla.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, carla.ID, renamed.ID)
	assert.Equal(t, "Carla B.", renamed.Name)
}

func TestRoster_UpdateUnknown(t *testing.T) {
	r := NewRoster(RenameDetaches)
	_, err := r.Update("nope", Patch{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRoster_NamedAndRemove(t *testing.T) {
	r := NewRoster(RenameDetaches)
	ann := r.Add(model.CategoryAdult, "Ann")
	r.Add(model.CategoryChild, "  ")

	assert.Len(t, r.Named(), 1)

	r.Remove(ann.ID)
	r.Remove("missing")
	_, ok := r.Lookup(ann.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, r.IDs().Len())
}

func TestRoster_NamedIDs(t *testing.T) {
	r := NewRoster(RenameKeepsIdentity)
	carla := r.Add(model.CategoryAdult, "Carla")
	blank := r.Add(model.CategoryChild, "")

	named := r.NamedIDs()
	assert.True(t, named.Contains(carla.ID))
	assert.False(t, named.Contains(blank.ID))

	empty := ""
	_, err := r.Update(carla.ID, Patch{Name: &empty})
	require.NoError(t, err)
	assert.True(t, r.IDs().Contains(carla.ID), "identity survives the cleared name")
	assert.Equal(t, 0, r.NamedIDs().Len())
}
