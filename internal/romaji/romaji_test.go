package romaji

import (
	"strings"
	"testing"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"vowels", "あいうえお", "aiueo"},
		{"kunrei rows", "しちつふじ", "sitituhuzi"},
		{"youon", "きょうしゅう", "kyousyuu"},
		{"sokuon doubles", "がっこう", "gakkou"},
		{"sokuon before youon", "まっちゃ", "mattya"},
		{"sokuon at end", "あっ", "axtu"},
		{"sokuon before vowel", "あっあ", "axtua"},
		{"particle wo", "おちゃをのむ", "otyawonomu"},
		{"long vowel", "こーひー", "ko-hi-"},
		{"nasal middle", "かんじ", "kannzi"},
		{"nasal before vowel", "きんえん", "kinnenn"},
		{"nasal alone", "ん", "nn"},
		{"nasal twice", "んん", "nnnn"},
		{"nasal leading", "んあ", "nna"},
		{"voiced digraph je", "じぇ", "zixe"},
		{"voiced digraph di", "でぃ", "dexi"},
		{"voiced digraph in word", "でぃすく", "dexisuku"},
		{"voiced digraph then nasal", "じぇんだー", "zixennda-"},
		{"katakana folded", "カタカナ", "katakana"},
		{"punctuation", "はい、そう。", "hai,sou."},
		{"spaces stripped", "あ い　う", "aiu"},
		{"apostrophe stripped", "it's", "its"},
		{"ascii passthrough", "abc123", "abc123"},
		{"unmapped passthrough", "漢じ", "漢zi"},
		{"decomposed dakuten", "\u304b\u3099", "ga"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convert(tt.input); got != tt.want {
				t.Fatalf("Convert(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConvertNoSeparators(t *testing.T) {
	phrases := []string{
		"きょうはいいひです",
		"わたしのなまえはたなかです",
		"ちょっとまって",
		"おちゃをのみたい",
		"あした あめ",
	}
	for _, p := range phrases {
		got := Convert(p)
		if strings.ContainsAny(got, " '") {
			t.Fatalf("Convert(%q) = %q contains a separator", p, got)
		}
	}
}

func TestVoicedDigraphBeatsTable(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"じぇ", "zixe"},
		{"でぃ", "dexi"},
		{"じゃ", "zixya"},
		{"ぢゃ", "dixya"},
		{"ずっ", "zuxtu"},
	}
	for _, tt := range tests {
		if got := Convert(tt.input); got != tt.want {
			t.Fatalf("Convert(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
	// The plain table romanizes these pairs differently.
	for input, naive := range map[string]string{"じゃ": "zya", "ぢゃ": "dya"} {
		if got := defaultEngine.transliterate(input); got != naive {
			t.Fatalf("table transliterate(%q) = %q, want %q", input, got, naive)
		}
	}
}

func TestConvertDeterministic(t *testing.T) {
	e := New()
	for i := 0; i < 3; i++ {
		if got := e.Convert("しんぶんをよむ"); got != "sinnbunnwoyomu" {
			t.Fatalf("run %d: got %q", i, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	phrases := []string{
		"きょうはいいひです",
		"がっこうにいく",
		"わたしのなまえ",
		"ちょっとまって",
		"おちゃをのむ",
		"こーひーをください",
		"りょこうのしゃしょう",
		"しんぶんをよむ",
		"でんしゃにのる",
		"じゅぎょうがはじまる",
		"ふつかめ",
	}
	for _, p := range phrases {
		keys := Convert(p)
		if got := kunreiToKana(keys); got != p {
			t.Fatalf("round trip %q -> %q -> %q", p, keys, got)
		}
	}
}

// kunreiSyllables is a hand-written kunrei-shiki reference, kept apart from
// the engine's table so a wrong entry there cannot round-trip.
var kunreiSyllables = map[string]string{
	"a": "あ", "i": "い", "u": "う", "e": "え", "o": "お",
	"ka": "か", "ki": "き", "ku": "く", "ke": "け", "ko": "こ",
	"ga": "が", "gi": "ぎ", "gu": "ぐ", "ge": "げ", "go": "ご",
	"sa": "さ", "si": "し", "su": "す", "se": "せ", "so": "そ",
	"za": "ざ", "zi": "じ", "zu": "ず", "ze": "ぜ", "zo": "ぞ",
	"ta": "た", "ti": "ち", "tu": "つ", "te": "て", "to": "と",
	"da": "だ", "de": "で", "do": "ど",
	"na": "な", "ni": "に", "nu": "ぬ", "ne": "ね", "no": "の",
	"ha": "は", "hi": "ひ", "hu": "ふ", "he": "へ", "ho": "ほ",
	"ba": "ば", "bi": "び", "bu": "ぶ", "be": "べ", "bo": "ぼ",
	"pa": "ぱ", "pi": "ぴ", "pu": "ぷ", "pe": "ぺ", "po": "ぽ",
	"ma": "ま", "mi": "み", "mu": "む", "me": "め", "mo": "も",
	"ya": "や", "yu": "ゆ", "yo": "よ",
	"ra": "ら", "ri": "り", "ru": "る", "re": "れ", "ro": "ろ",
	"wa": "わ", "wo": "を", "nn": "ん",
	"kya": "きゃ", "kyu": "きゅ", "kyo": "きょ",
	"gya": "ぎゃ", "gyu": "ぎゅ", "gyo": "ぎょ",
	"sya": "しゃ", "syu": "しゅ", "syo": "しょ",
	"zya": "じゃ", "zyu": "じゅ", "zyo": "じょ",
	"tya": "ちゃ", "tyu": "ちゅ", "tyo": "ちょ",
	"nya": "にゃ", "nyu": "にゅ", "nyo": "にょ",
	"hya": "ひゃ", "hyu": "ひゅ", "hyo": "ひょ",
	"bya": "びゃ", "byu": "びゅ", "byo": "びょ",
	"pya": "ぴゃ", "pyu": "ぴゅ", "pyo": "ぴょ",
	"mya": "みゃ", "myu": "みゅ", "myo": "みょ",
	"rya": "りゃ", "ryu": "りゅ", "ryo": "りょ",
	"-": "ー",
}

// kunreiToKana decodes keystrokes greedily, longest syllable first. A
// doubled consonant other than n is a sokuon.
func kunreiToKana(keys string) string {
	var b strings.Builder
	for i := 0; i < len(keys); {
		if i+1 < len(keys) && keys[i] == keys[i+1] && keys[i] != 'n' && strings.IndexByte("aiueo-", keys[i]) < 0 {
			b.WriteString("っ")
			i++
			continue
		}
		matched := false
		for n := 3; n > 0; n-- {
			if i+n > len(keys) {
				continue
			}
			if k, ok := kunreiSyllables[keys[i:i+n]]; ok {
				b.WriteString(k)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(keys[i])
			i++
		}
	}
	return b.String()
}
