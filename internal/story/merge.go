package story

import "storyloom/internal/storyapi"

// Merge folds one poll response into the accumulated state. It is a pure
// reducer: the input state is not mutated, and applying the same response
// twice yields the same state as applying it once.
//
// Rules, per data category:
//   - Progress: Current is adopted only when >= the applied value; a stale
//     numeric value is discarded but its message still shows.
//   - Cover slots: first arrival wins; a slot with an applied image is never
//     overwritten by this path.
//   - Story draft: adopted whole from the first storyText payload, then left
//     alone until Finalize replaces it.
//   - Page images: write-once per page number; the distinct applied count is
//     tracked for progress display only.
func Merge(state State, resp *storyapi.JobStatus) State {
	if resp == nil {
		return state
	}

	out := state

	if resp.Progress != nil {
		if resp.Progress.Current >= out.Progress.Current {
			out.Progress.Current = resp.Progress.Current
			if resp.Progress.Total > 0 {
				out.Progress.Total = resp.Progress.Total
			}
		}
		if resp.Progress.Message != "" {
			out.Progress.Message = resp.Progress.Message
		}
	}

	if resp.PartialCovers != nil {
		out.Covers = mergeCovers(out.Covers, resp.PartialCovers)
	}

	if out.Draft == nil && resp.StoryText != nil {
		out.Draft = cloneSnapshot(resp.StoryText)
	}

	if len(resp.PartialPages) > 0 {
		out.PageImages = mergePages(out.PageImages, resp.PartialPages)
		out.AppliedPages = len(out.PageImages)
	}

	if resp.CurrentCredits != nil {
		credits := *resp.CurrentCredits
		out.Credits = &credits
	}

	return out
}

// Finalize replaces the accumulated partial state wholesale with the
// authoritative completed payload. Partial maps do not survive; the result
// is the single source of truth from here on.
func Finalize(state State, result *storyapi.JobResult) State {
	if result == nil {
		return state
	}

	out := NewState()
	out.Progress = Progress{Current: 100, Total: 100, Message: state.Progress.Message}
	out.Draft = cloneSnapshot(&result.Story)

	for _, scene := range result.SceneImages {
		if scene.Page > 0 && scene.Image != "" {
			out.PageImages[scene.Page] = scene.Image
		}
	}
	out.AppliedPages = len(out.PageImages)

	if result.Covers.FrontCover != "" {
		out.Covers[SlotFrontCover] = result.Covers.FrontCover
	}
	if result.Covers.InitialPage != "" {
		out.Covers[SlotInitialPage] = result.Covers.InitialPage
	}
	if result.Covers.BackCover != "" {
		out.Covers[SlotBackCover] = result.Covers.BackCover
	}

	switch {
	case result.CreditsRemaining != nil:
		credits := *result.CreditsRemaining
		out.Credits = &credits
	case state.Credits != nil:
		credits := *state.Credits
		out.Credits = &credits
	}

	out.Final = true
	return out
}

func mergeCovers(existing map[CoverSlot]string, incoming *storyapi.CoverSet) map[CoverSlot]string {
	updates := map[CoverSlot]string{
		SlotFrontCover:  incoming.FrontCover,
		SlotInitialPage: incoming.InitialPage,
		SlotBackCover:   incoming.BackCover,
	}

	var out map[CoverSlot]string
	for slot, image := range updates {
		if image == "" {
			continue
		}
		if _, applied := existing[slot]; applied {
			continue
		}
		if out == nil {
			out = cloneCovers(existing)
		}
		out[slot] = image
	}
	if out == nil {
		return existing
	}
	return out
}

func mergePages(existing map[int]string, incoming []storyapi.PartialPage) map[int]string {
	var out map[int]string
	for _, fragment := range incoming {
		if fragment.Page <= 0 || fragment.Image == "" {
			continue
		}
		if _, applied := existing[fragment.Page]; applied {
			continue
		}
		if out != nil {
			if _, applied := out[fragment.Page]; applied {
				continue
			}
		}
		if out == nil {
			out = clonePageImages(existing)
		}
		out[fragment.Page] = fragment.Image
	}
	if out == nil {
		return existing
	}
	return out
}
