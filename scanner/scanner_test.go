package scanner

import (
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/Peterrvisserr/WOOBARNEVELD/recovery"
)

// describe renders a token compactly so whole token sequences can be
// compared as string slices.
func describe(tok Token) string {
	switch tok.Type {
	case TokenDict:
		return "<<"
	case TokenArray:
		return "["
	case TokenName:
		return "/" + tok.Str
	case TokenString:
		if tok.Hex {
			return "<" + string(tok.Bytes) + ">"
		}
		return "(" + string(tok.Bytes) + ")"
	case TokenNumber:
		if tok.IsInt {
			return strconv.FormatInt(tok.Int, 10)
		}
		return "r:" + strconv.FormatFloat(tok.Float, 'f', -1, 64)
	case TokenRef:
		return strconv.FormatInt(tok.Int, 10) + " " + strconv.FormatInt(tok.Gen, 10) + " R"
	case TokenNull:
		return "null"
	case TokenStream:
		return "stream:" + string(tok.Bytes)
	case TokenInlineImage:
		return "ID:" + strconv.Quote(string(tok.Bytes))
	}
	return tok.Str
}

func tokens(t *testing.T, data string, cfg Config) []string {
	t.Helper()
	s := New([]byte(data), cfg)
	var out []string
	for {
		tok, err := s.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("scan %q: %v", data, err)
		}
		out = append(out, describe(tok))
	}
}

func sameTokens(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestScanner_Tokens(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{
			name: "object with dictionary",
			data: "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj",
			want: []string{"1", "0", "obj", "<<", "/Name", "/Value", "/Nums", "[", "1", "2", "3", "]", "/Flag", "true", "/Null", "null", ">>", "endobj"},
		},
		{name: "reference", data: "12 5 R %comment\n", want: []string{"12 5 R"}},
		{name: "color operator is not a reference", data: "0 0 1 RG", want: []string{"0", "0", "1", "RG"}},
		{name: "reals", data: "-12.5 .5 4.", want: []string{"r:-12.5", "r:0.5", "r:4"}},
		{name: "name escapes", data: "/Name#20With#23Hash", want: []string{"/Name With#Hash"}},
		{name: "literal escapes", data: `(Hi\n\050\051\t)`, want: []string{"(Hi\n()\t)"}},
		{name: "line continuation", data: "(Line\\\r\ncontinued)", want: []string{"(Linecontinued)"}},
		{name: "odd hex string", data: "<48656c6c6f3>", want: []string{"<Hello0>"}},
		{name: "hex string with nul", data: "<0041>", want: []string{"<\x00A>"}},
		{
			name: "TJ array with hex strings and kerning",
			data: "BT /F1 12 Tf 72 720 Td [(Jan) -250 <4A616E73656E> 120.5 (,)] TJ ET",
			want: []string{"BT", "/F1", "12", "Tf", "72", "720", "Td", "[", "(Jan)", "-250", "<Jansen>", "r:120.5", "(,)", "]", "TJ", "ET"},
		},
		{
			name: "quote operators",
			data: "(Jansen) ' 2 3 (BSN) \"",
			want: []string{"(Jansen)", "'", "2", "3", "(BSN)", "\""},
		},
		{
			name: "inline image between operators",
			data: "q BI /W 2 /H 1 /CS /G /BPC 8 ID \x01EI\xff\nEI\nQ",
			want: []string{"q", "BI", "/W", "2", "/H", "1", "/CS", "/G", "/BPC", "8", "ID:" + strconv.Quote("\x01EI\xff\n"), "Q"},
		},
		{name: "inline image after line break", data: "ID \nabc\nEI\nBT", want: []string{"ID:" + strconv.Quote("abc\n"), "BT"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tokens(t, tc.data, Config{}); !sameTokens(got, tc.want) {
				t.Fatalf("got %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestScanner_StreamPayload(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		length int64
		want   string
	}{
		{"declared length", "stream\r\nabcde\r\nendstream", 5, "abcde"},
		{"endstream fallback", "stream\nabc\r\nendstream\n", -1, "abc"},
		{"carriage returns only", "stream\rdata\rendstream\r", -1, "data"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New([]byte(tc.data), Config{})
			s.SetNextStreamLength(tc.length)
			tok, err := s.Next()
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if tok.Type != TokenStream || string(tok.Bytes) != tc.want {
				t.Fatalf("got %+v, want payload %q", tok, tc.want)
			}
		})
	}
}

func TestScanner_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		cfg    Config
		length int64
		want   string
	}{
		{"name too long", "/abcdefgh", Config{MaxNameLength: 5}, -1, "name too long"},
		{"hex string too long", "<000102>", Config{MaxStringLength: 2}, -1, "hex string too long"},
		{"literal string too long", "(abcdef)", Config{MaxStringLength: 3}, -1, "literal string too long"},
		{"stream too long", "stream\nabcdef\nendstream", Config{MaxStreamLength: 3}, 6, "stream too long"},
		{"stream scan limit", "stream\nabc", Config{MaxStreamScan: 2}, -1, "endstream not found"},
		{"stream missing EOL", "stream abc\nendstream", Config{}, -1, "missing EOL"},
		{"inline image too long", "ID \nabcdefghijk\nEI", Config{MaxInlineImage: 5}, -1, "inline image too long"},
		{"truncated inline image", "q BI /W 1 /H 1 ID \x01\x02", Config{}, -1, "unterminated inline image"},
		{"unterminated literal", "(abc", Config{}, -1, "unterminated literal string"},
		{"unterminated hex", "<abc", Config{}, -1, "unterminated hex string"},
		{"dict depth", "<< /A << /B << >> >> >>", Config{MaxDictDepth: 2}, -1, "dict depth exceeded"},
		{"array depth", "[[[(Jan)]]] TJ", Config{MaxArrayDepth: 2}, -1, "array depth exceeded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New([]byte(tc.data), tc.cfg)
			s.SetNextStreamLength(tc.length)
			var err error
			for err == nil {
				_, err = s.Next()
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

type fixRecovery struct{}

func (f *fixRecovery) OnError(err error, loc recovery.Location) recovery.Action {
	return recovery.ActionFix
}

func TestScanner_Fix(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		cfg    Config
		length int64
		want   string
	}{
		{"unterminated literal", "(abc", Config{}, -1, "(abc)"},
		{"unterminated hex", "<4142", Config{}, -1, "<AB>"},
		{"truncated stream length", "stream\nabc", Config{}, 5, "stream:abc"},
		{"stream scan limit", "stream\nabc", Config{MaxStreamScan: 1}, -1, "stream:abc"},
		{"array underflow", "] 1", Config{}, -1, "1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.Recovery = &fixRecovery{}
			s := New([]byte(tc.data), cfg)
			s.SetNextStreamLength(tc.length)
			tok, err := s.Next()
			if err != nil {
				t.Fatalf("expected recovery to continue, got %v", err)
			}
			if got := describe(tok); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestScanner_FixUnclosedArrayAtEOF(t *testing.T) {
	got := tokens(t, "[(Jan) -250 (Jansen) ", Config{Recovery: &fixRecovery{}})
	want := []string{"[", "(Jan)", "-250", "(Jansen)", "]"}
	if !sameTokens(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type recordRecovery struct {
	loc recovery.Location
}

func (r *recordRecovery) OnError(err error, loc recovery.Location) recovery.Action {
	r.loc = loc
	return recovery.ActionFail
}

func TestScanner_RecoveryLocation(t *testing.T) {
	rec := &recordRecovery{}
	s := New([]byte("BT <4a61"), Config{Recovery: rec})
	s.SetRecoveryLocation(recovery.Location{ObjectNum: 5, ObjectGen: 2, Component: "content"})
	var err error
	for err == nil {
		_, err = s.Next()
	}
	if rec.loc.ObjectNum != 5 || rec.loc.ObjectGen != 2 {
		t.Fatalf("object context lost: %+v", rec.loc)
	}
	if rec.loc.Component != "content->scanner:hex" {
		t.Fatalf("unexpected component %q", rec.loc.Component)
	}
}
