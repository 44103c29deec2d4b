package common

import (
	"reflect"
	"testing"
)

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  https://example.com  ", "https://example.com"},
		{"https://example.com,", "https://example.com"},
		{"(https://example.com)", "https://example.com"},
		{"[read this](https://example.com/a?b=1)", "https://example.com/a?b=1"},
		{"<https://example.com/x>;", "https://example.com/x"},
	}
	for _, tt := range tests {
		if got := SanitizeURL(tt.in); got != tt.want {
			t.Errorf("SanitizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeAndValidateURLs(t *testing.T) {
	valid, invalid := SanitizeAndValidateURLs([]string{
		"https://news.example.com/story,",
		"http://127.0.0.1:8080/page",
		"ftp://example.com/file",
		"https://exa mple.com",
		"not a url",
		"",
	})

	wantValid := []string{"https://news.example.com/story", "http://127.0.0.1:8080/page"}
	if !reflect.DeepEqual(valid, wantValid) {
		t.Errorf("valid = %v, want %v", valid, wantValid)
	}
	if len(invalid) != 4 {
		t.Errorf("invalid = %v, want 4 entries", invalid)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, ,b,c ,")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList() = %v, want %v", got, want)
	}
}
