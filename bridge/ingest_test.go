package bridge

import (
	"context"
	"testing"
)

func commentNote(pageID, postID, commentID, fromID, fromName, message string) Notification {
	return Notification{
		Object: "page",
		Entries: []Entry{{
			PageID: pageID,
			Changes: []Change{{
				Field: "feed",
				Value: ChangeValue{
					Item:      "comment",
					Verb:      "add",
					PostID:    postID,
					CommentID: commentID,
					Message:   message,
					From:      Actor{ID: fromID, Name: fromName},
				},
			}},
		}},
	}
}

func newIngestService() (*Service, *fakeLinks, *fakeNotifier) {
	links := &fakeLinks{records: []LinkRecord{{ThreadRootID: "root1", ChannelID: "C1", PostID: "page1_42"}}}
	notif := &fakeNotifier{}
	svc := &Service{
		Creds:    &fakeCreds{cred: allowedCred()},
		Links:    links,
		Seen:     &fakeSeen{},
		Notifier: notif,
	}
	return svc, links, notif
}

func TestMirrorCommentIntoThread(t *testing.T) {
	svc, _, notif := newIngestService()

	svc.MirrorComments(context.Background(), commentNote("page1", "page1_42", "cm1", "777", "Ada Lovelace", "looks delicious"))
	if len(notif.replies) != 1 {
		t.Fatalf("expected one thread reply, got %d", len(notif.replies))
	}
	r := notif.replies[0]
	if r.channel != "C1" || r.target != "root1" {
		t.Fatalf("reply routed to %q/%q", r.channel, r.target)
	}
	if r.text != "comment from Ada Lovelace: looks delicious" {
		t.Fatalf("reply text %q", r.text)
	}
}

func TestMirrorSkipsNonCommentItems(t *testing.T) {
	svc, _, notif := newIngestService()

	note := commentNote("page1", "page1_42", "cm1", "777", "Ada", "hi")
	note.Entries[0].Changes[0].Value.Item = "reaction"
	svc.MirrorComments(context.Background(), note)

	note2 := commentNote("page1", "page1_42", "cm2", "777", "Ada", "hi")
	note2.Entries[0].Changes[0].Value.Verb = "edited"
	svc.MirrorComments(context.Background(), note2)

	note3 := commentNote("page1", "page1_42", "cm3", "777", "Ada", "hi")
	note3.Entries[0].Changes[0].Field = "mention"
	svc.MirrorComments(context.Background(), note3)

	if len(notif.replies) != 0 {
		t.Fatalf("non comment/add changes must be ignored, got %v", notif.replies)
	}
}

func TestMirrorSkipsPagesOwnComments(t *testing.T) {
	svc, _, notif := newIngestService()

	// The actor id matches the post's page prefix, so this is the page echoing
	// a comment the bridge itself created.
	svc.MirrorComments(context.Background(), commentNote("page1", "page1_42", "cm1", "page1", "The Page", "mirrored reply"))
	if len(notif.replies) != 0 {
		t.Fatal("the page's own comments must not be mirrored back")
	}
}

func TestMirrorDeduplicatesDeliveries(t *testing.T) {
	svc, _, notif := newIngestService()

	note := commentNote("page1", "page1_42", "cm1", "777", "Ada", "once please")
	svc.MirrorComments(context.Background(), note)
	svc.MirrorComments(context.Background(), note)
	if len(notif.replies) != 1 {
		t.Fatalf("redelivered comment must be mirrored once, got %d", len(notif.replies))
	}
}

func TestMirrorIgnoresUnlinkedPost(t *testing.T) {
	svc, _, notif := newIngestService()

	svc.MirrorComments(context.Background(), commentNote("page1", "page1_99", "cm1", "777", "Ada", "orphan"))
	if len(notif.replies) != 0 {
		t.Fatal("comments on unlinked posts must be dropped")
	}
}

func TestMirrorIgnoresNonPageObject(t *testing.T) {
	svc, _, notif := newIngestService()

	note := commentNote("page1", "page1_42", "cm1", "777", "Ada", "hi")
	note.Object = "user"
	svc.MirrorComments(context.Background(), note)
	if len(notif.replies) != 0 {
		t.Fatal("only page objects are processed")
	}
}

func TestMirrorAnonymousCommenter(t *testing.T) {
	svc, _, notif := newIngestService()

	svc.MirrorComments(context.Background(), commentNote("page1", "page1_42", "cm1", "777", "", "anon"))
	if len(notif.replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(notif.replies))
	}
	if notif.replies[0].text != "comment from someone: anon" {
		t.Fatalf("reply text %q", notif.replies[0].text)
	}
}

func TestMirrorSkipsCommentWithoutText(t *testing.T) {
	svc, _, notif := newIngestService()

	svc.MirrorComments(context.Background(), commentNote("page1", "page1_42", "cm1", "777", "Ada", ""))
	if len(notif.replies) != 0 {
		t.Fatalf("a comment with no text must not be mirrored, got %v", notif.replies)
	}
}

func TestMirrorProcessesBatchIndependently(t *testing.T) {
	svc, links, notif := newIngestService()
	links.records = append(links.records, LinkRecord{ThreadRootID: "root2", ChannelID: "C2", PostID: "page1_43"})

	note := Notification{
		Object: "page",
		Entries: []Entry{{
			PageID: "page1",
			Changes: []Change{
				{Field: "feed", Value: ChangeValue{Item: "comment", Verb: "add", PostID: "page1_404", CommentID: "cmA", Message: "orphan", From: Actor{ID: "1"}}},
				{Field: "feed", Value: ChangeValue{Item: "comment", Verb: "add", PostID: "page1_42", CommentID: "cmB", Message: "first", From: Actor{ID: "2", Name: "B"}}},
				{Field: "feed", Value: ChangeValue{Item: "comment", Verb: "add", PostID: "page1_43", CommentID: "cmC", Message: "second", From: Actor{ID: "3", Name: "C"}}},
			},
		}},
	}
	svc.MirrorComments(context.Background(), note)
	if len(notif.replies) != 2 {
		t.Fatalf("one bad change must not block the rest, got %d replies", len(notif.replies))
	}
}
