package imap

import "testing"

func TestFolderNaming(t *testing.T) {
	if got := OneToOneFolder("Default", "+33601020304"); got != "Default/+33601020304" {
		t.Errorf("one-to-one folder = %q", got)
	}
	if got := GroupFolder("Default", "grp-42"); got != "Default/grp-42" {
		t.Errorf("group folder = %q", got)
	}
}

func TestConversationID(t *testing.T) {
	if got := ConversationID("Default", "Default/+33601020304"); got != "+33601020304" {
		t.Errorf("conversation id = %q", got)
	}
	if got := ConversationID("Default", "INBOX"); got != "" {
		t.Errorf("folder outside root must map to %q, got %q", "", got)
	}
}
