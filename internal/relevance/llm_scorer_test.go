package relevance

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildPromptIncludesPatchContext(t *testing.T) {
	patch := PatchContext{Title: "Go (programming language)", Aliases: []string{"Golang"}, Tags: []string{"systems", "concurrency"}}
	prompt := buildPrompt(patch, "A Tour of Go", "https://go.dev/tour", "Go is an open source language.")

	for _, want := range []string{"Go (programming language)", "Golang", "systems, concurrency", "A Tour of Go", "https://go.dev/tour"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func TestBuildPromptTruncatesCaller(t *testing.T) {
	longText := strings.Repeat("a", MaxInputBytes+1000)
	prompt := buildPrompt(PatchContext{Title: "x"}, "t", "u", longText[:MaxInputBytes])
	if strings.Contains(prompt, strings.Repeat("a", MaxInputBytes+1)) {
		t.Error("expected prompt text to reflect caller-side truncation to MaxInputBytes")
	}
}

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{errors.New("rate limited (429)"), true},
		{errors.New("RESOURCE_EXHAUSTED: quota exceeded"), true},
	}
	for _, c := range cases {
		if got := isRateLimited(c.err); got != c.want {
			t.Errorf("isRateLimited(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
