package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeCreateCategory(t *testing.T) {
	raw := []byte(`{"name":"Sports","parent":null}`)
	decoded, err := Decode(KindCreateCategory, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := decoded.(*CreateCategoryPayload)
	if !ok {
		t.Fatalf("unexpected type %T", decoded)
	}
	if payload.Name != "Sports" {
		t.Fatalf("unexpected name %q", payload.Name)
	}
	if payload.Parent != nil {
		t.Fatalf("expected nil parent, got %v", *payload.Parent)
	}
}

func TestDecodeVerifyNews(t *testing.T) {
	raw := []byte(`{"newsId":"65f1","status":"published","verifiedBy":"u1"}`)
	decoded, err := Decode(KindVerifyNews, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := decoded.(*VerifyNewsPayload)
	if payload.NewsID != "65f1" || payload.Status != "published" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDecodeRejectedSharesVerifiedShape(t *testing.T) {
	raw := []byte(`{"applicationId":"a1","verifiedBy":"u2","status":"rejected","reporterId":"r1"}`)
	decoded, err := Decode(KindApplicationRejected, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := decoded.(*ApplicationVerifiedPayload); !ok {
		t.Fatalf("unexpected type %T", decoded)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode("resize-images", []byte(`{}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(KindDeleteNews, []byte(`{`))
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPayloadRoundTripKeepsFields(t *testing.T) {
	in := UploadNewsPayload{
		Title:      "Flood warning",
		Content:    "River levels rising.",
		CategoryID: "cat-1",
		Language:   "en",
		Tags:       []string{"weather"},
		ReportedBy: "rep-1",
		ImageURLs:  []string{"https://cdn.example.com/a.jpg"},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := Decode(KindUploadNews, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := decoded.(*UploadNewsPayload)
	if out.Title != in.Title || out.ReportedBy != in.ReportedBy || len(out.ImageURLs) != 1 {
		t.Fatalf("payload changed in transit: %+v", out)
	}
}
