package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cloudpico-viewer/internal/types"
)

func TestStore_InitialState(t *testing.T) {
	st := NewStore().Snapshot()

	assert.False(t, st.CurrentWeather.IsPresent())
	assert.False(t, st.Device.IsPresent())
	assert.False(t, st.Status.IsPresent())
	assert.False(t, st.ErrorMessage.IsPresent())
	assert.NotNil(t, st.History)
	assert.NotNil(t, st.Locations)
	assert.Empty(t, st.SelectedLocation)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s := NewStore()

	var got []State
	unsubscribe := s.Subscribe(func(st State) { got = append(got, st) })

	s.update(func(st *State) { st.Loading = true })
	s.update(func(st *State) { st.ErrorMessage = types.Some("boom") })

	assert.Len(t, got, 2)
	assert.True(t, got[0].Loading)
	assert.False(t, got[0].ErrorMessage.IsPresent())
	assert.Equal(t, "boom", got[1].ErrorMessage.OrElse(""))

	unsubscribe()
	unsubscribe()
	s.update(func(st *State) { st.Loading = false })
	assert.Len(t, got, 2)
	assert.False(t, s.Snapshot().Loading)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.update(func(st *State) { st.Locations = []string{"Garden"} })

	before := s.Snapshot()
	s.update(func(st *State) { st.Locations = []string{"Garage", "Attic"} })

	assert.Equal(t, []string{"Garden"}, before.Locations)
	assert.Equal(t, []string{"Garage", "Attic"}, s.Snapshot().Locations)
}
