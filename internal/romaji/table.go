package romaji

// TableVersion identifies the embedded kana table. Bump it whenever an entry
// changes so stored runs can be told apart.
const TableVersion = "kunrei-ime/2"

// kana holds single kana and two-kana youon entries. Romanization follows
// kunrei-shiki (si, ti, tu, hu, zi, sya) except where an IME needs a
// different key sequence to reach the same kana (wo, di, du, wyi, wye).
var kana = map[string]string{
	"あ": "a", "い": "i", "う": "u", "え": "e", "お": "o",
	"か": "ka", "き": "ki", "く": "ku", "け": "ke", "こ": "ko",
	"さ": "sa", "し": "si", "す": "su", "せ": "se", "そ": "so",
	"た": "ta", "ち": "ti", "つ": "tu", "て": "te", "と": "to",
	"な": "na", "に": "ni", "ぬ": "nu", "ね": "ne", "の": "no",
	"は": "ha", "ひ": "hi", "ふ": "hu", "へ": "he", "ほ": "ho",
	"ま": "ma", "み": "mi", "む": "mu", "め": "me", "も": "mo",
	"や": "ya", "ゆ": "yu", "よ": "yo",
	"ら": "ra", "り": "ri", "る": "ru", "れ": "re", "ろ": "ro",
	"わ": "wa", "ゐ": "wyi", "ゑ": "wye", "を": "wo",
	"が": "ga", "ぎ": "gi", "ぐ": "gu", "げ": "ge", "ご": "go",
	"ざ": "za", "じ": "zi", "ず": "zu", "ぜ": "ze", "ぞ": "zo",
	"だ": "da", "ぢ": "di", "づ": "du", "で": "de", "ど": "do",
	"ば": "ba", "び": "bi", "ぶ": "bu", "べ": "be", "ぼ": "bo",
	"ぱ": "pa", "ぴ": "pi", "ぷ": "pu", "ぺ": "pe", "ぽ": "po",
	"ゔ": "vu",
	"ん": "nn",

	"ぁ": "xa", "ぃ": "xi", "ぅ": "xu", "ぇ": "xe", "ぉ": "xo",
	"ゃ": "xya", "ゅ": "xyu", "ょ": "xyo", "ゎ": "xwa",
	"ゕ": "xka", "ゖ": "xke", "っ": "xtu",

	"きゃ": "kya", "きゅ": "kyu", "きょ": "kyo",
	"ぎゃ": "gya", "ぎゅ": "gyu", "ぎょ": "gyo",
	"しゃ": "sya", "しゅ": "syu", "しょ": "syo", "しぇ": "sye",
	"じゃ": "zya", "じゅ": "zyu", "じょ": "zyo",
	"ちゃ": "tya", "ちゅ": "tyu", "ちょ": "tyo", "ちぇ": "tye",
	"ぢゃ": "dya", "ぢゅ": "dyu", "ぢょ": "dyo",
	"にゃ": "nya", "にゅ": "nyu", "にょ": "nyo",
	"ひゃ": "hya", "ひゅ": "hyu", "ひょ": "hyo",
	"びゃ": "bya", "びゅ": "byu", "びょ": "byo",
	"ぴゃ": "pya", "ぴゅ": "pyu", "ぴょ": "pyo",
	"みゃ": "mya", "みゅ": "myu", "みょ": "myo",
	"りゃ": "rya", "りゅ": "ryu", "りょ": "ryo",
	"ふぁ": "fa", "ふぃ": "fi", "ふぇ": "fe", "ふぉ": "fo", "ふゅ": "fyu",
	"うぃ": "wi", "うぇ": "we",
	"ゔぁ": "va", "ゔぃ": "vi", "ゔぇ": "ve", "ゔぉ": "vo",

	"ー": "-", "、": ",", "。": ".", "「": "[", "」": "]",
	"・": "/", "！": "!", "？": "?", "〜": "~",
}

// voicedBase and smallGlide drive the digraph pre-pass.
var voicedBase = map[rune]string{
	'ざ': "za", 'じ': "zi", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'だ': "da", 'ぢ': "di", 'づ': "du", 'で': "de", 'ど': "do",
}

var smallGlide = map[rune]string{
	'ぁ': "xa", 'ぃ': "xi", 'ぅ': "xu", 'ぇ': "xe", 'ぉ': "xo",
	'ゃ': "xya", 'ゅ': "xyu", 'ょ': "xyo",
	'っ': "xtu",
}

// doublingConsonants are the leading letters a sokuon may double.
const doublingConsonants = "bcdfghjkmpqrstvwyz"
