package keyword

import "testing"

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name string
		text string
		cfg  Config
		want Result
	}{
		{
			name: "negative wins over positive",
			text: "mau beli laptop giveaway",
			cfg:  Config{Positive: []string{"beli"}, Negative: []string{"giveaway"}},
			want: RejectNegative,
		},
		{
			name: "empty positive set passes",
			text: "halo dunia",
			cfg:  Config{Negative: []string{"bot"}},
			want: Pass,
		},
		{
			name: "positive required and present",
			text: "Saya mau BELI chatgpt plus",
			cfg:  Config{Positive: []string{"beli"}},
			want: Pass,
		},
		{
			name: "positive required and missing",
			text: "jual akun murah",
			cfg:  Config{Positive: []string{"beli"}},
			want: RejectMissingPositive,
		},
		{
			name: "whitespace text with positives",
			text: "   \n\t ",
			cfg:  Config{Positive: []string{"beli"}},
			want: RejectMissingPositive,
		},
		{
			name: "empty text without positives",
			text: "",
			cfg:  Config{Negative: []string{"bot"}},
			want: Pass,
		},
		{
			name: "case insensitive negative",
			text: "GIVEAWAY hari ini",
			cfg:  Config{Negative: []string{"giveaway"}},
			want: RejectNegative,
		},
		{
			name: "NFKC folds fullwidth letters",
			text: "ｂｅｌｉ sekarang",
			cfg:  Config{Positive: []string{"beli"}},
			want: Pass,
		},
		{
			name: "word mode ignores inner substring",
			text: "robotika itu seru",
			cfg:  Config{Negative: []string{"bot"}, Mode: MatchWord},
			want: Pass,
		},
		{
			name: "word mode matches whole word",
			text: "ini bot, bukan manusia",
			cfg:  Config{Negative: []string{"bot"}, Mode: MatchWord},
			want: RejectNegative,
		},
		{
			name: "substring mode matches inner substring",
			text: "robotika itu seru",
			cfg:  Config{Negative: []string{"bot"}},
			want: RejectNegative,
		},
		{
			name: "min length",
			text: "beli",
			cfg:  Config{Positive: []string{"beli"}, MinLength: 5},
			want: RejectMissingPositive,
		},
		{
			name: "blank keywords are ignored",
			text: "apa saja",
			cfg:  Config{Negative: []string{"  "}, Positive: []string{""}},
			want: RejectMissingPositive,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Evaluate(c.text, c.cfg)
			if got.Result != c.want {
				t.Fatalf("Evaluate(%q) = %v (%s), want %v", c.text, got.Result, got.Reason, c.want)
			}
			if got.Reason == "" {
				t.Error("verdict reason is empty")
			}
		})
	}
}

func TestEvaluate_NegativePrecedenceProperty(t *testing.T) {
	// WHAT: Any text containing a negative keyword is rejected as negative,
	// whatever positive keywords it also contains.
	// WHY: Tie-break law of the filter.
	cfg := Config{Positive: []string{"beli", "cari", "butuh"}, Negative: []string{"giveaway", "jual"}}
	texts := []string{
		"beli giveaway",
		"giveaway beli cari butuh",
		"JUAL dan BELI",
		"cari... jual!",
	}
	for _, text := range texts {
		if got := Evaluate(text, cfg); got.Result != RejectNegative {
			t.Errorf("Evaluate(%q) = %v, want RejectNegative", text, got.Result)
		}
	}
}

func TestEvaluate_KeywordReported(t *testing.T) {
	v := Evaluate("mau beli", Config{Positive: []string{"cari", "beli"}})
	if v.Keyword != "beli" {
		t.Fatalf("Keyword = %q, want beli", v.Keyword)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  ＨＡＬＯ  "); got != "halo" {
		t.Fatalf("Normalize = %q, want halo", got)
	}
}
