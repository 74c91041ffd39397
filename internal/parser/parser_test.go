package parser

import (
	"testing"
)

func TestPlainText(t *testing.T) {
	pt, err := Parse("Hello, World")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pt.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d: %+v", len(pt.Tokens), pt.Tokens)
	}
	if pt.Tokens[0].Kind != Text || pt.Tokens[0].Payload != "Hello, World" {
		t.Fatalf("unexpected token: %+v", pt.Tokens[0])
	}
}

func TestEscapeLiteral(t *testing.T) {
	pt, err := Parse("1 << 2 = 4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pt.Tokens) != 1 || pt.Tokens[0].Payload != "1 < 2 = 4" {
		t.Fatalf("unexpected tokens: %+v", pt.Tokens)
	}
}

func TestExpression(t *testing.T) {
	pt, err := Parse(`<% x := 2 + 3 %>sum=<%= x %>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Token{
		{Kind: Code, Payload: "x := 2 + 3"},
		{Kind: Text, Payload: "sum="},
		{Kind: Expression, Payload: "x"},
	}
	if len(pt.Tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %+v", len(want), len(pt.Tokens), pt.Tokens)
	}
	for i, tok := range pt.Tokens {
		if tok != want[i] {
			t.Errorf("token %d: got %+v, want %+v", i, tok, want[i])
		}
	}
}

func TestDirectiveAndDeclaration(t *testing.T) {
	pt, err := Parse(`<%@ use "fmt" %><%! var counter = 0 %>done`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pt.Directives) != 1 || pt.Directives[0] != `use "fmt"` {
		t.Fatalf("unexpected directives: %+v", pt.Directives)
	}
	if len(pt.Declarations) != 1 || pt.Declarations[0] != "var counter = 0" {
		t.Fatalf("unexpected declarations: %+v", pt.Declarations)
	}
}

func TestUnclosedTag(t *testing.T) {
	_, err := Parse("prefix <% x :=")
	if err != ErrUnclosedTag {
		t.Fatalf("expected ErrUnclosedTag, got %v", err)
	}
}

func TestPercentInsideTagNotFollowedByGT(t *testing.T) {
	pt, err := Parse(`<% x := a % b %>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pt.Tokens) != 1 || pt.Tokens[0].Payload != "x := a % b" {
		t.Fatalf("unexpected tokens: %+v", pt.Tokens)
	}
}

func TestEmptyTextRunsAreNotEmitted(t *testing.T) {
	pt, err := Parse(`<%= a %><%= b %>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range pt.Tokens {
		if tok.Kind == Text {
			t.Fatalf("expected no text tokens, got %+v", pt.Tokens)
		}
	}
}

func TestMixedDocument(t *testing.T) {
	input := `<html><%@ use "strconv" %><%! var hits = 0 %><body><%
hits++
%>Hits: <%= hits %></body></html>`
	pt, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var kinds []Kind
	for _, tok := range pt.Tokens {
		kinds = append(kinds, tok.Kind)
	}
	want := []Kind{Text, Directive, Declaration, Text, Code, Text, Expression, Text}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token %d kind: got %v, want %v", i, kinds[i], want[i])
		}
	}
}
