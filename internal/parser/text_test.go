package parser

import (
	"context"
	"testing"
)

func TestTextParser_UTF8(t *testing.T) {
	t.Parallel()

	p := NewTextParser()
	res, err := p.Parse(context.Background(), "note.txt", []byte("  café menu \n"))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if res.Text != "café menu" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestTextParser_Latin1Fallback(t *testing.T) {
	t.Parallel()

	// 0xE9 is 'e with acute' in Latin-1 and invalid standalone UTF-8.
	data := []byte{'c', 'a', 'f', 0xE9}

	p := NewTextParser()
	res, err := p.Parse(context.Background(), "legacy.txt", data)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if res.Text != "café" {
		t.Errorf("Text = %q, want %q", res.Text, "café")
	}
}
