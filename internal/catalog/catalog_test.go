package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/surfbooking/internal/model"
)

type stubFetcher struct {
	calls int
	data  []MasterData
	err   error
}

func (f *stubFetcher) GetMasterData(ctx context.Context) (*MasterData, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := f.data[f.calls%len(f.data)]
	f.calls++
	return &d, nil
}

func TestStore_CurrentCachesSnapshot(t *testing.T) {
	f := &stubFetcher{data: []MasterData{{BookingNumber: "BK-1"}}}
	s := NewStore(f, time.Minute)

	first, err := s.Current(context.Background())
	require.NoError(t, err)
	second, err := s.Current(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.calls)
}

func TestStore_RefreshProducesNewSnapshot(t *testing.T) {
	f := &stubFetcher{data: []MasterData{
		{Packages: []model.Package{{ID: "p1", Name: "Private"}}},
		{Packages: []model.Package{{ID: "p2", Name: "Group"}}},
	}}
	s := NewStore(f, time.Minute)

	old, err := s.Current(context.Background())
	require.NoError(t, err)

	fresh, err := s.Refresh(context.Background())
	require.NoError(t, err)

	_, ok := old.Package("p1")
	assert.True(t, ok, "old snapshot must stay untouched")
	_, ok = fresh.Package("p2")
	assert.True(t, ok)

	current, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, current)
}

func TestStore_FetchError(t *testing.T) {
	s := NewStore(&stubFetcher{err: errors.New("boom")}, time.Minute)

	_, err := s.Current(context.Background())
	require.Error(t, err)
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	snap := NewSnapshot(MasterData{
		Agents: []model.Agent{{Code: "AG1", Channels: []model.Channel{model.ChannelBank}}},
	}, time.Now())

	agents := snap.Agents()
	agents[0].Channels[0] = model.ChannelBalance

	a, ok := snap.Agent("AG1")
	require.True(t, ok)
	assert.Equal(t, model.ChannelBank, a.Channels[0])
}
