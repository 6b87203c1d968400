package provider

import (
	"strings"
	"testing"
)

func TestSentences_AbbreviationsAndDecimals(t *testing.T) {
	got := sentences("Mr. Smith measured 3.14 meters. Dr. Jones agreed.")
	if len(got) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %#v", len(got), got)
	}
}

func TestSentences_Ellipsis(t *testing.T) {
	got := sentences("Wait... really? Yes.")
	if len(got) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %#v", len(got), got)
	}
	if got[0] != "Wait... really?" {
		t.Fatalf("unexpected first sentence: %q", got[0])
	}
}

func TestSplit_PacksSentencesUpToLimit(t *testing.T) {
	c := SentenceChunker{}
	got := c.Split("item", "One. Two. Three.", 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(got), got)
	}
	if got[0].Text != "One. Two." || got[1].Text != "Three." {
		t.Fatalf("unexpected chunks: %#v", got)
	}
	if got[0].ID != "item-0000" || got[1].Index != 1 {
		t.Fatalf("unexpected ids: %#v", got)
	}
}

func TestSplit_OversizedSentenceIsCut(t *testing.T) {
	parts := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		parts = append(parts, "clause")
	}
	text := strings.Join(parts, ", ") + "."

	got := SentenceChunker{MaxChars: 100}.Split("x", text, 0)
	if len(got) < 2 {
		t.Fatalf("expected several chunks, got %d", len(got))
	}
	for i, ch := range got {
		if n := len([]rune(ch.Text)); n > 100 {
			t.Fatalf("chunk %d exceeds limit: %d", i, n)
		}
	}
}

func TestSplit_LimitCappedToSpeechInput(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	got := SentenceChunker{}.Split("x", text, 100000)
	for i, ch := range got {
		if n := len([]rune(ch.Text)); n > MaxSpeechInputChars {
			t.Fatalf("chunk %d exceeds speech limit: %d", i, n)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	if got := (SentenceChunker{}).Split("x", "  \n\t ", 100); len(got) != 0 {
		t.Fatalf("expected no chunks, got %#v", got)
	}
}
