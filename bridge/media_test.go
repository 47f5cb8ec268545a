package bridge

import (
	"context"
	"testing"
)

func TestFetchImagesFiltersUnsupported(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := &Service{Fetcher: fetcher}
	ev := InboundEvent{
		WorkspaceID: "T1",
		Attachments: []Attachment{
			{URL: "u1", Name: "a.jpeg", DeclaredType: "jpeg"},
			{URL: "u2", Name: "b.mov", DeclaredType: "mov"},
			{URL: "u3", Name: "c.TIFF", DeclaredType: "TIFF"},
		},
	}
	media, err := svc.fetchImages(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(media) != 2 {
		t.Fatalf("expected 2 supported images, got %d", len(media))
	}
	if media[0].ContentType != "image/jpeg" || media[1].ContentType != "image/tiff" {
		t.Fatalf("content types: %q, %q", media[0].ContentType, media[1].ContentType)
	}
}

func TestFetchImagesNoSupportedAttachments(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := &Service{Fetcher: fetcher}
	ev := InboundEvent{Attachments: []Attachment{{URL: "u1", DeclaredType: "webm"}}}
	media, err := svc.fetchImages(context.Background(), ev)
	if err != nil || media != nil {
		t.Fatalf("expected nil, nil; got %v, %v", media, err)
	}
	if len(fetcher.urls) != 0 {
		t.Fatal("nothing should be downloaded")
	}
}

func TestFetchImagesOneFailureFailsAll(t *testing.T) {
	fetcher := &fakeFetcher{failOn: "u2"}
	svc := &Service{Fetcher: fetcher}
	ev := InboundEvent{
		Attachments: []Attachment{
			{URL: "u1", Name: "a.png", DeclaredType: "png"},
			{URL: "u2", Name: "b.png", DeclaredType: "png"},
			{URL: "u3", Name: "c.png", DeclaredType: "png"},
		},
	}
	media, err := svc.fetchImages(context.Background(), ev)
	if err == nil {
		t.Fatal("expected error from failed download")
	}
	if media != nil {
		t.Fatal("no partial set on failure")
	}
}

func TestFetchFirstImage(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := &Service{Fetcher: fetcher}
	ev := InboundEvent{
		Attachments: []Attachment{
			{URL: "u1", Name: "skip.txt", DeclaredType: "txt"},
			{URL: "u2", Name: "first.bmp", DeclaredType: "bmp"},
			{URL: "u3", Name: "second.png", DeclaredType: "png"},
		},
	}
	m, err := svc.fetchFirstImage(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.Filename != "first.bmp" {
		t.Fatalf("expected first supported attachment, got %+v", m)
	}
	if len(fetcher.urls) != 1 {
		t.Fatalf("only one download expected, got %v", fetcher.urls)
	}
}

func TestFetchFirstImageNone(t *testing.T) {
	svc := &Service{Fetcher: &fakeFetcher{}}
	m, err := svc.fetchFirstImage(context.Background(), InboundEvent{})
	if err != nil || m != nil {
		t.Fatalf("expected nil, nil; got %v, %v", m, err)
	}
}

func TestSupportedTypeOverride(t *testing.T) {
	svc := &Service{ImageTypes: []string{"png"}}
	if svc.supportedType("jpeg") {
		t.Fatal("override should exclude jpeg")
	}
	if !svc.supportedType("PNG") {
		t.Fatal("matching is case-insensitive")
	}
}
