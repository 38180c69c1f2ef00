package thread

import "github.com/greeddj/imapmw/internal/fetchpipe"

// MergeWithSent folds a separately-fetched sent folder into an already
// built list of conversations: drop sent messages already present by
// Message-ID, attach
// the rest to an existing conversation when they reference (or are
// referenced by) one of its messages, and otherwise start a new
// conversation for them (tagged with their own folder, which the
// caller has already set to the sent folder's name on each message).
func MergeWithSent(primary []Conversation, sent []*fetchpipe.MailMessage) []Conversation {
	present := make(map[string]struct{})
	for _, conv := range primary {
		for _, m := range conv.Messages {
			if m.MessageID != "" {
				present[m.MessageID] = struct{}{}
			}
		}
	}

	var fresh []*fetchpipe.MailMessage
	for _, m := range sent {
		if m.MessageID != "" {
			if _, dup := present[m.MessageID]; dup {
				continue
			}
		}
		fresh = append(fresh, m)
	}

	result := append([]Conversation(nil), primary...)
	var newConvs []Conversation

	for _, m := range fresh {
		idx := findAttachable(result, m)
		if idx >= 0 {
			result[idx].Messages = append(result[idx].Messages, m)
			if m.MessageID != "" {
				present[m.MessageID] = struct{}{}
			}
			continue
		}
		joined := false
		for i := range newConvs {
			if conversationReferences(newConvs[i], m) || referencesConversation(m, newConvs[i]) {
				newConvs[i].Messages = append(newConvs[i].Messages, m)
				joined = true
				break
			}
		}
		if !joined {
			newConvs = append(newConvs, Conversation{Messages: []*fetchpipe.MailMessage{m}})
		}
	}

	return append(result, newConvs...)
}

func findAttachable(convs []Conversation, m *fetchpipe.MailMessage) int {
	for i, conv := range convs {
		if conversationReferences(conv, m) || referencesConversation(m, conv) {
			return i
		}
	}
	return -1
}

// conversationReferences reports whether some message already in conv
// references m's Message-ID.
func conversationReferences(conv Conversation, m *fetchpipe.MailMessage) bool {
	if m.MessageID == "" {
		return false
	}
	for _, existing := range conv.Messages {
		if existing.InReplyTo == m.MessageID {
			return true
		}
		for _, ref := range references(existing) {
			if ref == m.MessageID {
				return true
			}
		}
	}
	return false
}

// referencesConversation reports whether m references a Message-ID
// already present in conv.
func referencesConversation(m *fetchpipe.MailMessage, conv Conversation) bool {
	ids := make(map[string]struct{}, len(conv.Messages))
	for _, existing := range conv.Messages {
		if existing.MessageID != "" {
			ids[existing.MessageID] = struct{}{}
		}
	}
	if m.InReplyTo != "" {
		if _, ok := ids[m.InReplyTo]; ok {
			return true
		}
	}
	for _, ref := range references(m) {
		if _, ok := ids[ref]; ok {
			return true
		}
	}
	return false
}
