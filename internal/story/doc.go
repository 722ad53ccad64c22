// Package story holds the progressively accumulated generation state and the
// pure reducer that folds poll responses into it.
//
// Every merge rule is monotonic: progress never regresses, fragments are
// write-once per identity, and the story draft is adopted whole exactly once.
// Repeated or reordered poll responses therefore cannot corrupt state - the
// only wholesale replacement is Finalize, applied when the job completes.
package story
