package imap

import "strings"

// Folder names are derived deterministically from the conversation
// identity so every device of the account lands in the same mailbox.

// OneToOneFolder returns the folder for a one-to-one conversation.
func OneToOneFolder(root, contact string) string {
	return root + "/" + contact
}

// GroupFolder returns the folder for a group conversation.
func GroupFolder(root, chatID string) string {
	return root + "/" + chatID
}

// ConversationID extracts the contact or chat id from a folder name, or ""
// if the folder is outside the root.
func ConversationID(root, folder string) string {
	prefix := root + "/"
	if !strings.HasPrefix(folder, prefix) {
		return ""
	}
	return folder[len(prefix):]
}
