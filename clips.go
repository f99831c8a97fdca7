package main

// Clip library and per-quadrant rotation.
//
// The library is a read-only shared list built at session-configuration time
// from the --clips directory. Each quadrant owns an independent rotation
// cursor over it; when a clip ends the cursor advances to the next clip not
// in use by a sibling quadrant, provided enough clips exist to avoid the
// collision, wrapping around.

type clip struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

type clipLibrary struct {
	clips []*clip
}

func newClipLibrary(names []string, prefix string) *clipLibrary {
	lib := &clipLibrary{}
	for _, name := range names {
		lib.clips = append(lib.clips, &clip{
			Name:   name,
			Title:  titleCase(name),
			Source: prefix + "/clips/" + name,
		})
	}
	return lib
}

func (l *clipLibrary) size() int {
	return len(l.clips)
}

// resolve maps a clip reference (its file name) back to the library entry.
func (l *clipLibrary) resolve(name string) *clip {
	for _, c := range l.clips {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (l *clipLibrary) at(idx int) *clip {
	if len(l.clips) == 0 {
		return nil
	}
	return l.clips[((idx%len(l.clips))+len(l.clips))%len(l.clips)]
}

// currentClip returns the quadrant's active clip.
func (q *quadrant) currentClip() *clip {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clip
}

// retarget switches this quadrant's video-cycling target to c and tells the
// client to start playing it. restart forces playback from time zero.
func (q *quadrant) retarget(c *clip, restart bool) {
	if c == nil {
		return
	}

	q.mu.Lock()
	q.clip = c
	for i, lc := range q.session.library.clips {
		if lc == c {
			q.clipIndex = i
			break
		}
	}
	q.mu.Unlock()

	q.session.ui.render(q.id, videoMessage{
		Type:     "video",
		Quadrant: q.id,
		Clip:     c,
		Restart:  restart,
	})
}

// advanceClip rotates to the next clip, skipping clips in use by sibling
// quadrants when the library is large enough to avoid the collision.
func (q *quadrant) advanceClip() {
	lib := q.session.library
	if lib.size() == 0 {
		return
	}

	inUse := make(map[*clip]bool)
	for _, other := range q.session.quads {
		if other == q {
			continue
		}
		if c := other.currentClip(); c != nil {
			inUse[c] = true
		}
	}

	q.mu.Lock()
	next := q.clipIndex
	q.mu.Unlock()

	for attempts := 0; attempts < lib.size(); attempts++ {
		next++
		candidate := lib.at(next)
		if !inUse[candidate] || lib.size() <= len(q.session.quads) {
			break
		}
	}

	q.retarget(lib.at(next), false)
}

// gridPool builds the candidate clips for a grid-choice phase: everything
// except this quadrant's current clip and, when enough clips exist, clips
// in use by other quadrants.
func (q *quadrant) gridPool() []*clip {
	lib := q.session.library
	current := q.currentClip()

	inUse := make(map[*clip]bool)
	for _, other := range q.session.quads {
		if other == q {
			continue
		}
		if c := other.currentClip(); c != nil {
			inUse[c] = true
		}
	}

	var pool []*clip
	for _, c := range lib.clips {
		if lib.size() > 1 && c == current {
			continue
		}
		if inUse[c] && lib.size() > len(q.session.quads) {
			continue
		}
		pool = append(pool, c)
	}
	return pool
}
