package postgres

import (
	"testing"
)

func TestDecodeCatalogBoothUsesColumns(t *testing.T) {
	raw := []byte(`{"docId":"stale","boothIdx":99,"name":"Coffee","floor":"2F","quiz":{"question":"?","options":["a","b"],"correctAnswer":1}}`)
	booth, err := decodeCatalogBooth("b-1", 4, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if booth.DocID != "b-1" || booth.Index != 4 {
		t.Fatalf("expected columns to win, got %+v", booth)
	}
	if booth.Name != "Coffee" || booth.Quiz == nil || booth.Quiz.CorrectAnswer != 1 {
		t.Fatalf("unexpected booth %+v", booth)
	}
}

func TestDecodeCatalogBoothRejectsGarbage(t *testing.T) {
	if _, err := decodeCatalogBooth("b-1", 1, []byte("not json")); err == nil {
		t.Fatalf("expected error")
	}
}
