package app

import "github.com/docoho/emoji/internal/store"

// canMutate decides whether user may edit or delete entry. Direct ownership
// via submitter_id wins; the email comparison is a legacy fallback for rows
// recorded before submitter ids existed, and only applies when no id is set.
// Mutation paths re-derive this at request time; the can_delete flag in list
// responses is never trusted.
func canMutate(entry store.Emoji, user *store.User) bool {
	if user == nil {
		return false
	}
	if entry.SubmitterID != nil {
		return *entry.SubmitterID == user.ID
	}
	if entry.SubmitterEmail != nil {
		return *entry.SubmitterEmail == user.Email
	}
	return false
}
