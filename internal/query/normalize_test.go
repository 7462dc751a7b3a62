package query

import "testing"

func TestNormalizeRules(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "comma then spaces", input: "foo,   bar", want: "foo,bar"},
		{name: "spaces then comma", input: "foo   ,bar", want: "foo,bar"},
		{name: "both sides", input: "Foo  ,  Bar", want: "foo,bar"},
		{name: "inner whitespace collapsed", input: "machine \t learning", want: "machine learning"},
		{name: "trim", input: "  Go  ", want: "go"},
		{name: "keeps empty tokens", input: "a, ,b", want: "a,,b"},
		{name: "newlines", input: "a\n,\nb", want: "a,b"},
		{name: "no commas", input: "Hello   World", want: "hello world"},
		{name: "ideographic space after comma", input: "Foo,\u3000Bar", want: "foo,bar"},
		{name: "no-break space before comma", input: "Foo\u00a0,Bar", want: "foo,bar"},
		{name: "bom and ideographic space trimmed", input: "\ufeff\u3000Go\u3000", want: "go"},
		{name: "unicode run collapsed", input: "machine\u3000\u00a0learning", want: "machine learning"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		" ",
		"plain",
		"Foo,  Bar",
		" ,a , b ,",
		"a   ,b",
		"\t\tMixed Case ,\n Tags\r\n",
		"x,,  ,y",
	}
	for _, input := range inputs {
		once := Normalize(input)
		if twice := Normalize(once); twice != once {
			t.Fatalf("normalize 不幂等: %q -> %q -> %q", input, once, twice)
		}
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	for _, input := range []string{"Foo,  Bar", "Foo,\u3000Bar", "Foo\u00a0,Bar"} {
		if Normalize(input) != Normalize("foo,bar") {
			t.Fatalf("不同空白/大小写的同一组 tag 应相等: %q", input)
		}
	}
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, seed := range []string{"", "Foo,  Bar", "Foo,\u3000Bar", "Foo\u00a0,Bar", "\ufeff a ,\v b", "x,,  ,y"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		once := Normalize(input)
		if twice := Normalize(once); twice != once {
			t.Fatalf("normalize 不幂等: %q -> %q -> %q", input, once, twice)
		}
	})
}

func TestTokensDropsEmpty(t *testing.T) {
	got := Tokens(" A , ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected tokens: %v", got)
	}
	if tokens := Tokens("   "); len(tokens) != 0 {
		t.Fatalf("空查询不应产生 token: %v", tokens)
	}
}

func TestAppendTag(t *testing.T) {
	if got := AppendTag("", "Go"); got != "go" {
		t.Fatalf("expected go, got %q", got)
	}
	if got := AppendTag("go, Rust", "wasm"); got != "go,rust,wasm" {
		t.Fatalf("expected appended tag, got %q", got)
	}
	if got := AppendTag("go,  RUST", " rust "); got != "go,rust" {
		t.Fatalf("已存在的 tag 不应重复追加，得到 %q", got)
	}
	if got := AppendTag("go", "  "); got != "go" {
		t.Fatalf("空 tag 应保持查询不变，得到 %q", got)
	}
}

func TestContainsTag(t *testing.T) {
	if !ContainsTag("x, Y", "y") {
		t.Fatalf("case-insensitive match expected")
	}
	if ContainsTag("x,y", "") {
		t.Fatalf("empty tag never matches")
	}
	if ContainsTag("golang", "go") {
		t.Fatalf("partial token must not match")
	}
}

func TestAppendFormTag(t *testing.T) {
	cases := []struct {
		current, tag, want string
	}{
		{"", "Go", "Go"},
		{"go,db", "API", "go, db, API"},
		{"go, db", "db", "go, db"},
		{"go", "Go", "go, Go"},
		{"go", "  ", "go"},
	}
	for _, tc := range cases {
		if got := AppendFormTag(tc.current, tc.tag); got != tc.want {
			t.Fatalf("AppendFormTag(%q, %q) = %q, want %q", tc.current, tc.tag, got, tc.want)
		}
	}
}
