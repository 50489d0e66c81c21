package mediatypes

import "testing"

func TestGetKind(t *testing.T) {
	tests := []struct {
		ext  string
		want Kind
	}{
		{".jpg", KindImage},
		{".heic", KindImage},
		{".webp", KindImage},
		{".mov", KindVideo},
		{".mp4", KindVideo},
		{".txt", KindOther},
		{".wpl", KindOther},
		{"", KindOther},
	}
	for _, tt := range tests {
		if got := GetKind(tt.ext); got != tt.want {
			t.Errorf("GetKind(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType(".mov"); got != "video/quicktime" {
		t.Errorf("GetMimeType(.mov) = %q", got)
	}
	if got := GetMimeType(".xyz"); got != "application/octet-stream" {
		t.Errorf("GetMimeType(.xyz) = %q", got)
	}
}

func TestMovFamilyIsSubsetOfVideoExtensions(t *testing.T) {
	for ext := range MovFamilyExtensions {
		if !VideoExtensions[ext] {
			t.Errorf("mov-family extension %q missing from VideoExtensions", ext)
		}
	}
}

func TestLiveCapableIsSubsetOfImageExtensions(t *testing.T) {
	for ext := range LiveCapableExtensions {
		if !ImageExtensions[ext] {
			t.Errorf("live-capable extension %q missing from ImageExtensions", ext)
		}
	}
}
