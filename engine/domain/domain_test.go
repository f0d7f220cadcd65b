package domain

import (
	"errors"
	"testing"
)

func TestCollectionName(t *testing.T) {
	s := Source{ID: 42, OwnerID: 7}
	if got := s.CollectionName(); got != "source_42_7" {
		t.Errorf("unexpected collection name: %s", got)
	}

	// Pure function of (id, owner): same inputs, same name.
	if s.CollectionName() != (Source{ID: 42, OwnerID: 7, Name: "other"}).CollectionName() {
		t.Error("collection name should not depend on other fields")
	}
	if s.CollectionName() == (Source{ID: 42, OwnerID: 8}).CollectionName() {
		t.Error("collection name must differ across owners")
	}
}

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		wantErr bool
	}{
		{"valid api", Source{Name: "orders", Kind: KindAPI, APIURL: "https://example.com/api"}, false},
		{"valid pdf", Source{Name: "manual", Kind: KindPDF, PDFPath: "/data/manual.pdf"}, false},
		{"missing name", Source{Kind: KindAPI, APIURL: "https://example.com"}, true},
		{"unknown kind", Source{Name: "x", Kind: "rss"}, true},
		{"api without url", Source{Name: "x", Kind: KindAPI}, true},
		{"pdf without file", Source{Name: "x", Kind: KindPDF}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSource(tt.src)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSource() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSource_MissingFileSentinel(t *testing.T) {
	err := ValidateSource(Source{Name: "manual", Kind: KindPDF})
	if !errors.Is(err, ErrMissingFile) {
		t.Errorf("expected ErrMissingFile, got %v", err)
	}
}
