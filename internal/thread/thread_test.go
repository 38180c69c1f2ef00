package thread

import (
	"testing"
	"time"

	"github.com/greeddj/imapmw/internal/fetchpipe"
)

func newMsg(uid uint32, folder, messageID, inReplyTo string, received time.Time) *fetchpipe.MailMessage {
	m := fetchpipe.NewMailMessage(folder, uid, 1)
	m.UID = uid
	m.MailID = messageID
	m.MessageID = messageID
	m.InReplyTo = inReplyTo
	m.ReceivedDate = received
	return m
}

// TestMergeWithSentScenario covers a merge-with-sent case: primary
// folder has A and B (a reply to A); sent folder has C (a reply to B)
// and D (a reply to an absent message X). With include_sent=true,
// A/B/C join one conversation, and D starts its own conversation
// tagged with the sent folder.
func TestMergeWithSentScenario(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	a := newMsg(1, "INBOX", "<a@x>", "", base)
	b := newMsg(2, "INBOX", "<b@x>", "<a@x>", base.Add(time.Minute))

	primary := []Conversation{{Messages: []*fetchpipe.MailMessage{a, b}}}

	c := newMsg(10, "Sent", "<c@x>", "<b@x>", base.Add(2*time.Minute))
	d := newMsg(11, "Sent", "<d@x>", "<x-absent@x>", base.Add(3*time.Minute))

	merged := MergeWithSent(primary, []*fetchpipe.MailMessage{c, d})

	if len(merged) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(merged))
	}

	abc := merged[0]
	if len(abc.Messages) != 3 {
		t.Fatalf("expected first conversation to have 3 messages (A,B,C), got %d", len(abc.Messages))
	}
	ids := map[string]bool{}
	for _, m := range abc.Messages {
		ids[m.MessageID] = true
	}
	for _, want := range []string{"<a@x>", "<b@x>", "<c@x>"} {
		if !ids[want] {
			t.Errorf("expected conversation to contain %s, messages: %+v", want, ids)
		}
	}

	dConv := merged[1]
	if len(dConv.Messages) != 1 || dConv.Messages[0].MessageID != "<d@x>" {
		t.Fatalf("expected second conversation to be just D, got %+v", dConv.Messages)
	}
	if dConv.Messages[0].Folder != "Sent" {
		t.Errorf("expected D's folder to remain Sent, got %q", dConv.Messages[0].Folder)
	}
}

func TestMergeWithSentDropsDuplicateMessageID(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a := newMsg(1, "INBOX", "<a@x>", "", base)
	primary := []Conversation{{Messages: []*fetchpipe.MailMessage{a}}}

	dup := newMsg(99, "Sent", "<a@x>", "", base)
	merged := MergeWithSent(primary, []*fetchpipe.MailMessage{dup})

	if len(merged) != 1 || len(merged[0].Messages) != 1 {
		t.Fatalf("expected duplicate sent message to be dropped, got %+v", merged)
	}
}

func TestBuildClientThreadsGroupsByReferences(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a := newMsg(1, "INBOX", "<a@x>", "", base)
	b := newMsg(2, "INBOX", "<b@x>", "<a@x>", base.Add(time.Minute))
	c := newMsg(3, "INBOX", "<c@x>", "", base.Add(2*time.Minute))

	convs := BuildClientThreads([]*fetchpipe.MailMessage{a, b, c})
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}

	sizes := map[int]int{}
	for _, conv := range convs {
		sizes[len(conv.Messages)]++
	}
	if sizes[2] != 1 || sizes[1] != 1 {
		t.Fatalf("expected one 2-message and one 1-message conversation, got sizes %v", sizes)
	}
}

func TestBuildClientThreadsCyclicReferencesDoNotHang(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a := newMsg(1, "INBOX", "<a@x>", "<b@x>", base)
	b := newMsg(2, "INBOX", "<b@x>", "<a@x>", base.Add(time.Minute))

	convs := BuildClientThreads([]*fetchpipe.MailMessage{a, b})
	if len(convs) != 1 || len(convs[0].Messages) != 2 {
		t.Fatalf("expected a single 2-message conversation despite the reference cycle, got %+v", convs)
	}
}

func TestFlattenAssignsThreadLevel(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a := newMsg(1, "INBOX", "<a@x>", "", base)
	b := newMsg(2, "INBOX", "<b@x>", "<a@x>", base.Add(time.Minute))
	byUID := map[uint32]*fetchpipe.MailMessage{1: a, 2: b}

	root := &Node{UID: 1, Children: []*Node{{UID: 2}}}
	convs := Flatten([]*Node{root}, byUID)

	if len(convs) != 1 || len(convs[0].Messages) != 2 {
		t.Fatalf("expected one conversation with 2 messages, got %+v", convs)
	}
	if convs[0].Messages[0].ThreadLevel != 0 {
		t.Errorf("expected root thread_level 0, got %d", convs[0].Messages[0].ThreadLevel)
	}
	if convs[0].Messages[1].ThreadLevel != 1 {
		t.Errorf("expected child thread_level 1, got %d", convs[0].Messages[1].ThreadLevel)
	}
}

func TestFlattenSkipsUnknownUID(t *testing.T) {
	a := newMsg(1, "INBOX", "<a@x>", "", time.Now().UTC())
	byUID := map[uint32]*fetchpipe.MailMessage{1: a}

	root := &Node{UID: 999}
	convs := Flatten([]*Node{root}, byUID)
	if len(convs) != 0 {
		t.Fatalf("expected no conversations for an unresolvable root, got %+v", convs)
	}
}

func TestSortConversationsReceivedDateDescending(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	older := newMsg(1, "INBOX", "<old@x>", "", base)
	newer := newMsg(2, "INBOX", "<new@x>", "", base.Add(time.Hour))

	convs := []Conversation{
		{Messages: []*fetchpipe.MailMessage{older}},
		{Messages: []*fetchpipe.MailMessage{newer}},
	}
	SortConversations(convs, "INBOX", SortReceivedDate, Descending)

	if convs[0].Messages[0].MessageID != "<new@x>" {
		t.Fatalf("expected newest conversation first, got %+v", convs)
	}
}

func TestLookAheadStepsAndFallsBackToFullFolder(t *testing.T) {
	if got := LookAhead(0, 0, 5000); got != 1000 {
		t.Errorf("expected minimal look-ahead of 1000, got %d", got)
	}
	if got := LookAhead(2000, 0, 50000); got != 4000 {
		t.Errorf("expected 4000 (steps past 2000*2=4000), got %d", got)
	}
	if got := LookAhead(2000, 0, 3000); got != -1 {
		t.Errorf("expected -1 (exceeds folder total), got %d", got)
	}
}

func TestSliceThenFillUsesMaxWhenRangeAbsent(t *testing.T) {
	var convs []Conversation
	for i := 0; i < 10; i++ {
		convs = append(convs, Conversation{})
	}
	// index_range absent (indexRangeEnd <= 0): window is the last
	// max=4 conversations of the list.
	first, slice, rest := SliceThenFill(convs, 0, 0, 4)
	if len(first) != 6 || len(slice) != 4 || len(rest) != 0 {
		t.Fatalf("expected (6,4,0), got (%d,%d,%d)", len(first), len(slice), len(rest))
	}
}

func TestSliceThenFillHonorsExplicitRange(t *testing.T) {
	var convs []Conversation
	for i := 0; i < 10; i++ {
		convs = append(convs, Conversation{})
	}
	// index_range=[2,6): max is irrelevant once a range is given.
	first, slice, rest := SliceThenFill(convs, 2, 6, 999)
	if len(first) != 2 || len(slice) != 4 || len(rest) != 4 {
		t.Fatalf("expected (2,4,4), got (%d,%d,%d)", len(first), len(slice), len(rest))
	}
}

func TestSliceThenFillClampsRangeEndPastListLength(t *testing.T) {
	var convs []Conversation
	for i := 0; i < 10; i++ {
		convs = append(convs, Conversation{})
	}
	// index_range=[8,20): end is clamped to len(convs); start is kept.
	first, slice, rest := SliceThenFill(convs, 8, 20, 0)
	if len(first) != 8 || len(slice) != 2 || len(rest) != 0 {
		t.Fatalf("expected (8,2,0), got (%d,%d,%d)", len(first), len(slice), len(rest))
	}
}

func TestSearchTermMatchesClientSide(t *testing.T) {
	m := fetchpipe.NewMailMessage("INBOX", 1, 1)
	m.Subject = "Quarterly Report"
	m.Size = 5000

	subjTerm := Term{Kind: TermHeaderMatch, HeaderName: "subject", HeaderValue: "quarterly"}
	m.Headers = fetchpipe.HeaderValues{}
	m.Headers.Add("Subject", "Quarterly Report")

	if !Matches(subjTerm, m) {
		t.Errorf("expected subject header match")
	}

	sizeTerm := Term{Kind: TermSizeCompare, SizeCompare: SizeLarger, SizeValue: 1000}
	if !Matches(sizeTerm, m) {
		t.Errorf("expected size > 1000 to match")
	}

	notTerm := Term{Kind: TermNot, Operand: &sizeTerm}
	if Matches(notTerm, m) {
		t.Errorf("expected NOT(size>1000) to not match")
	}
}

func TestNeedsClientSideDetectsNotAndWildcards(t *testing.T) {
	wildcard := Term{Kind: TermHeaderMatch, HeaderName: "subject", HeaderValue: "foo*"}
	if !NeedsClientSide(wildcard) {
		t.Errorf("expected wildcarded header term to need client-side evaluation")
	}

	plain := Term{Kind: TermHeaderMatch, HeaderName: "subject", HeaderValue: "foo"}
	if NeedsClientSide(plain) {
		t.Errorf("expected plain header term to be server-expressible")
	}

	negated := Term{Kind: TermNot, Operand: &plain}
	if !NeedsClientSide(negated) {
		t.Errorf("expected Not term to need client-side evaluation")
	}
}
