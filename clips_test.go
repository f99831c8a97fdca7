package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClipLibrary(t *testing.T) {
	lib := newClipLibrary([]string{"beach_sunset.mp4", "city.webm"}, "/quad")

	require.Equal(t, 2, lib.size())
	assert.Equal(t, "beach_sunset.mp4", lib.clips[0].Name)
	assert.Equal(t, "Beach Sunset", lib.clips[0].Title)
	assert.Equal(t, "/quad/clips/beach_sunset.mp4", lib.clips[0].Source)

	assert.Same(t, lib.clips[1], lib.resolve("city.webm"))
	assert.Nil(t, lib.resolve("missing.mp4"))
}

func TestClipLibraryAtWraps(t *testing.T) {
	lib := newClipLibrary([]string{"a.mp4", "b.mp4", "c.mp4"}, "")

	assert.Equal(t, "a.mp4", lib.at(0).Name)
	assert.Equal(t, "a.mp4", lib.at(3).Name)
	assert.Equal(t, "c.mp4", lib.at(-1).Name)

	empty := newClipLibrary(nil, "")
	assert.Nil(t, empty.at(0))
}

func TestAdvanceClipSkipsSiblingClip(t *testing.T) {
	s, _ := newTestSession(t, "c0.mp4", "c1.mp4", "c2.mp4")
	q0, q1 := s.quads[0], s.quads[1]
	q0.retarget(s.library.at(0), false)
	q1.retarget(s.library.at(1), false)

	q0.advanceClip()

	assert.Equal(t, "c2.mp4", q0.currentClip().Name,
		"the next clip is on a sibling's screen, so it is skipped")
}

func TestAdvanceClipAllowsCollisionWhenLibrarySmall(t *testing.T) {
	s, _ := newTestSession(t, "c0.mp4", "c1.mp4")
	q0, q1 := s.quads[0], s.quads[1]
	q0.retarget(s.library.at(0), false)
	q1.retarget(s.library.at(1), false)

	q0.advanceClip()

	assert.Equal(t, "c1.mp4", q0.currentClip().Name,
		"with as many quadrants as clips there is nothing to skip to")
}

func TestAdvanceClipWrapsAround(t *testing.T) {
	cfg := &Config{quadrants: 1}
	ui := newFakeUI()
	s := newSession("test", cfg, ui, newClipLibrary([]string{"c0.mp4", "c1.mp4"}, ""))
	q := s.quads[0]
	q.retarget(s.library.at(1), false)

	q.advanceClip()

	assert.Equal(t, "c0.mp4", q.currentClip().Name)
}

func TestAdvanceClipEmptyLibrary(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]

	q.advanceClip()

	assert.Nil(t, q.currentClip())
}

func TestGridPoolExclusions(t *testing.T) {
	s, _ := newTestSession(t, "c0.mp4", "c1.mp4", "c2.mp4", "c3.mp4", "c4.mp4", "c5.mp4")
	q0, q1 := s.quads[0], s.quads[1]
	q0.retarget(s.library.at(0), false)
	q1.retarget(s.library.at(1), false)

	pool := q0.gridPool()

	names := make([]string, len(pool))
	for i, c := range pool {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"c2.mp4", "c3.mp4", "c4.mp4", "c5.mp4"}, names)
}

func TestGridPoolKeepsInUseClipsWhenLibrarySmall(t *testing.T) {
	s, _ := newTestSession(t, "c0.mp4", "c1.mp4")
	q0, q1 := s.quads[0], s.quads[1]
	q0.retarget(s.library.at(0), false)
	q1.retarget(s.library.at(1), false)

	pool := q0.gridPool()

	require.Len(t, pool, 1)
	assert.Equal(t, "c1.mp4", pool[0].Name)
}

func TestGridPoolSingleClipOffersCurrent(t *testing.T) {
	s, _ := newTestSession(t, "c0.mp4")
	q := s.quads[0]
	q.retarget(s.library.at(0), false)

	pool := q.gridPool()

	require.Len(t, pool, 1)
	assert.Equal(t, "c0.mp4", pool[0].Name)
}

func TestRetargetRendersVideo(t *testing.T) {
	s, ui := newTestSession(t, "c0.mp4", "c1.mp4")
	q := s.quads[0]

	q.retarget(s.library.at(1), false)

	videos := messagesOf[videoMessage](ui, q.id)
	require.Len(t, videos, 1)
	assert.Equal(t, "c1.mp4", videos[0].Clip.Name)
	assert.False(t, videos[0].Restart)

	q.retarget(nil, true)
	assert.Len(t, messagesOf[videoMessage](ui, q.id), 1, "nil clip is a no-op")
}
