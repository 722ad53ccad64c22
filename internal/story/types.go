package story

import "storyloom/internal/storyapi"

// CoverSlot identifies one of the three reserved cover positions.
type CoverSlot string

const (
	SlotFrontCover  CoverSlot = "frontCover"
	SlotInitialPage CoverSlot = "initialPage"
	SlotBackCover   CoverSlot = "backCover"
)

// CoverSlots lists the reserved slots in presentation order.
var CoverSlots = []CoverSlot{SlotFrontCover, SlotInitialPage, SlotBackCover}

// Progress mirrors the service's 0-100 progress scale with the invariant
// that Current never regresses once applied.
type Progress struct {
	Current int
	Total   int
	Message string
}

// Snapshot is the story text adopted from the pipeline. It is created whole
// from the first storyText payload and replaced whole by the final result,
// never patched field by field.
type Snapshot struct {
	Title             string
	Pages             map[int]string
	Dedication        string
	PageCount         int
	SceneDescriptions []string
}

// State is the accumulated, interface-visible generation state. Values are
// treated as immutable: Merge and Finalize return updated copies.
type State struct {
	Progress     Progress
	Covers       map[CoverSlot]string
	Draft        *Snapshot
	PageImages   map[int]string
	AppliedPages int
	Credits      *int
	Final        bool
}

// NewState returns an empty accumulation state.
func NewState() State {
	return State{
		Progress:   Progress{Total: 100},
		Covers:     map[CoverSlot]string{},
		PageImages: map[int]string{},
	}
}

func cloneSnapshot(src *storyapi.StoryDraft) *Snapshot {
	if src == nil {
		return nil
	}
	pages := make(map[int]string, len(src.Pages))
	for page, text := range src.Pages {
		pages[page] = text
	}
	scenes := make([]string, len(src.SceneDescriptions))
	copy(scenes, src.SceneDescriptions)
	return &Snapshot{
		Title:             src.Title,
		Pages:             pages,
		Dedication:        src.Dedication,
		PageCount:         src.PageCount,
		SceneDescriptions: scenes,
	}
}

// Clone returns a deep copy of the snapshot for read-only consumers.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	pages := make(map[int]string, len(s.Pages))
	for page, text := range s.Pages {
		pages[page] = text
	}
	scenes := make([]string, len(s.SceneDescriptions))
	copy(scenes, s.SceneDescriptions)
	return &Snapshot{
		Title:             s.Title,
		Pages:             pages,
		Dedication:        s.Dedication,
		PageCount:         s.PageCount,
		SceneDescriptions: scenes,
	}
}

func cloneCovers(src map[CoverSlot]string) map[CoverSlot]string {
	dst := make(map[CoverSlot]string, len(src))
	for slot, image := range src {
		dst[slot] = image
	}
	return dst
}

func clonePageImages(src map[int]string) map[int]string {
	dst := make(map[int]string, len(src))
	for page, image := range src {
		dst[page] = image
	}
	return dst
}

// CloneForView returns a copy safe to hand to other goroutines.
func (s State) CloneForView() State {
	out := s
	out.Covers = cloneCovers(s.Covers)
	out.PageImages = clonePageImages(s.PageImages)
	out.Draft = s.Draft.Clone()
	if s.Credits != nil {
		credits := *s.Credits
		out.Credits = &credits
	}
	return out
}
