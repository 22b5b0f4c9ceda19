package media

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Ordered set of the local tracks of an endpoint. The set holds at most one track of the
// visual slot (camera or screen) and any number of audio tracks.
type TrackSet struct {
	mutex  sync.RWMutex
	tracks []Track
}

func NewTrackSet(tracks ...Track) *TrackSet {
	set := &TrackSet{}
	for _, track := range tracks {
		set.Add(track)
	}

	return set
}

// Adds a track. A visual track takes over the visual slot, the previous occupant is
// reported as replaced.
func (s *TrackSet) Add(track Track) (Track, Change) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.index(track.ID()) >= 0 {
		return nil, ChangeNone
	}

	if track.Kind().IsVisual() {
		if idx := s.visualIndex(); idx >= 0 {
			previous := s.tracks[idx]
			s.tracks[idx] = track
			return previous, ChangeReplaced
		}
	}

	s.tracks = append(s.tracks, track)
	return nil, ChangeAdded
}

// Removes the track with the given id.
func (s *TrackSet) Remove(id string) (Track, Change) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return nil, ChangeNone
	}

	removed := s.tracks[idx]
	s.tracks = slices.Delete(s.tracks, idx, idx+1)
	return removed, ChangeRemoved
}

// Puts the track into the slot of the given kind (audio or visual) and returns the track
// that occupied it before. An empty slot is filled, which is reported as an addition.
func (s *TrackSet) Replace(slot Kind, track Track) (Track, Change) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var idx int
	if slot.IsVisual() {
		idx = s.visualIndex()
	} else {
		idx = slices.IndexFunc(s.tracks, func(t Track) bool { return t.Kind() == slot })
	}

	if idx < 0 {
		s.tracks = append(s.tracks, track)
		return nil, ChangeAdded
	}

	previous := s.tracks[idx]
	if previous.ID() == track.ID() {
		return nil, ChangeNone
	}

	s.tracks[idx] = track
	return previous, ChangeReplaced
}

// Enables or disables all tracks of the given kind.
func (s *TrackSet) SetEnabled(kind Kind, enabled bool) Change {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	change := ChangeNone
	for _, track := range s.tracks {
		if track.Kind() == kind && track.Enabled() != enabled {
			track.SetEnabled(enabled)
			change = ChangeEnabled
		}
	}

	return change
}

// Reports whether any track of the given kind is enabled.
func (s *TrackSet) Enabled(kind Kind) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return slices.IndexFunc(s.tracks, func(t Track) bool { return t.Kind() == kind && t.Enabled() }) >= 0
}

// Returns a copy of the tracks in the order they were added.
func (s *TrackSet) Tracks() []Track {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return slices.Clone(s.tracks)
}

func (s *TrackSet) Kinds() []Kind {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	kinds := make([]Kind, 0, len(s.tracks))
	for _, track := range s.tracks {
		kinds = append(kinds, track.Kind())
	}

	return kinds
}

// Returns the occupant of the visual slot, if any.
func (s *TrackSet) Video() Track {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if idx := s.visualIndex(); idx >= 0 {
		return s.tracks[idx]
	}

	return nil
}

// Returns the first audio track, if any.
func (s *TrackSet) Audio() Track {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if idx := slices.IndexFunc(s.tracks, func(t Track) bool { return t.Kind() == KindAudio }); idx >= 0 {
		return s.tracks[idx]
	}

	return nil
}

func (s *TrackSet) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.tracks)
}

// Stops all tracks and empties the set.
func (s *TrackSet) StopAll() {
	s.mutex.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.mutex.Unlock()

	for _, track := range tracks {
		track.Stop()
	}
}

func (s *TrackSet) index(id string) int {
	return slices.IndexFunc(s.tracks, func(t Track) bool { return t.ID() == id })
}

func (s *TrackSet) visualIndex() int {
	return slices.IndexFunc(s.tracks, func(t Track) bool { return t.Kind().IsVisual() })
}
