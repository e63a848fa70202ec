package sshshell

import "testing"

const testPrompt = ":21000] > "

func TestPromptMatcher_SingleChunk(t *testing.T) {
	m := newPromptMatcher(testPrompt)

	if m.Feed([]byte("some output\n[hadoop-1:21000] > ")) != true {
		t.Error("expected match when chunk ends with the sentinel")
	}
	if m.state != matcherIdle {
		t.Error("matcher should be idle after the prompt")
	}
}

func TestPromptMatcher_SentinelSplitAcrossChunks(t *testing.T) {
	m := newPromptMatcher(testPrompt)

	chunks := [][]byte{
		[]byte("row1\trow2\n[hadoop-1:21"),
		[]byte("000]"),
		[]byte(" > "),
	}
	for i, chunk := range chunks {
		got := m.Feed(chunk)
		want := i == len(chunks)-1
		if got != want {
			t.Errorf("chunk %d: match = %v, want %v", i, got, want)
		}
	}
}

func TestPromptMatcher_SentinelMidStreamDoesNotMatch(t *testing.T) {
	m := newPromptMatcher(testPrompt)

	// The sentinel followed by more output is not an idle prompt.
	if m.Feed([]byte("[hadoop-1:21000] > trailing")) {
		t.Error("sentinel not at the tail must not match")
	}
	if m.state != matcherReceiving {
		t.Error("matcher should still be receiving")
	}
}

func TestPromptMatcher_ByteAtATime(t *testing.T) {
	m := newPromptMatcher(testPrompt)

	stream := []byte("x\n[host:21000] > ")
	for i, b := range stream {
		got := m.Feed([]byte{b})
		want := i == len(stream)-1
		if got != want {
			t.Fatalf("byte %d (%q): match = %v, want %v", i, b, got, want)
		}
	}
}

func TestPromptMatcher_Reset(t *testing.T) {
	m := newPromptMatcher(testPrompt)
	m.Feed([]byte("output [hadoop-1:21000] > "))

	m.Reset()
	if m.Feed([]byte("> ")) {
		t.Error("match must not survive a reset")
	}
}
