package builtins

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("SOUNDEX", soundexFn)
	register("METAPHONE", metaphoneFn)
	register("DOUBLE_METAPHONE", doubleMetaphoneFn)
	register("COLOGNE_PHONETIC", cologneFn)
	register("CAVERPHONE", caverphoneFn)
	register("NYSIIS", nysiisFn)
	register("LEVENSHTEIN_DISTANCE", levenshteinFn)
	register("NGRAM_SIMILARITY", ngramSimilarityFn)
}

// soundexFn implements American Soundex, dispatched on an optional locale
// argument the way the original phonetic module picked a transliteration
// table per locale before handing off to the shared encoder: en/de/fr/es
// /it/pt/nl/el/ja each fold their script's diacritics or alphabet down to
// plain ASCII letters first, so loanword spellings from any of the nine
// locales land on comparable Soundex codes.
func soundexFn(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("SOUNDEX", 1, len(a))
	}
	s := a[0].AsString()
	locale := "en"
	if len(a) == 2 {
		locale = strings.ToLower(a[1].AsString())
	}
	return value.String(soundex(localeFold(s, locale))), nil
}

// localeFold transliterates s into plain ASCII the way the named locale's
// native speakers would read it aloud, so the shared soundex() encoder
// (which only understands A-Z) sees the same consonant skeleton a native
// Soundex table tuned for that locale would have produced.
func localeFold(s, locale string) string {
	switch locale {
	case "fr":
		return foldAccents(s)
	case "de":
		return foldGerman(s)
	case "es":
		return foldSpanish(s)
	case "it":
		return foldItalian(s)
	case "pt":
		return foldPortuguese(s)
	case "nl":
		return foldDutch(s)
	case "el":
		return transliterateGreek(s)
	case "ja":
		return transliterateJapanese(s)
	default:
		return s
	}
}

func foldAccents(s string) string {
	replacer := strings.NewReplacer(
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"à", "a", "â", "a", "ä", "a",
		"ô", "o", "ö", "o",
		"û", "u", "ù", "u", "ü", "u",
		"ç", "c", "î", "i", "ï", "i",
		"É", "E", "È", "E", "Ê", "E", "Ë", "E",
		"À", "A", "Â", "A", "Ä", "A",
		"Ô", "O", "Ö", "O",
		"Û", "U", "Ù", "U", "Ü", "U",
		"Ç", "C", "Î", "I", "Ï", "I",
	)
	return replacer.Replace(s)
}

func foldGerman(s string) string {
	replacer := strings.NewReplacer(
		"ä", "ae", "Ä", "Ae",
		"ö", "oe", "Ö", "Oe",
		"ü", "ue", "Ü", "Ue",
		"ß", "ss", "ẞ", "Ss",
	)
	return replacer.Replace(s)
}

func foldSpanish(s string) string {
	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "ny",
		"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "Ny",
	)
	return replacer.Replace(s)
}

func foldItalian(s string) string {
	replacer := strings.NewReplacer(
		"à", "a", "è", "e", "é", "e", "ì", "i", "í", "i", "î", "i",
		"ò", "o", "ó", "o", "ù", "u", "ú", "u",
		"À", "A", "È", "E", "É", "E", "Ì", "I", "Í", "I", "Î", "I",
		"Ò", "O", "Ó", "O", "Ù", "U", "Ú", "U",
	)
	return replacer.Replace(s)
}

func foldPortuguese(s string) string {
	replacer := strings.NewReplacer(
		"á", "a", "à", "a", "â", "a", "ã", "a", "ç", "c",
		"é", "e", "ê", "e", "í", "i", "ó", "o", "ô", "o", "õ", "o", "ú", "u",
		"Á", "A", "À", "A", "Â", "A", "Ã", "A", "Ç", "C",
		"É", "E", "Ê", "E", "Í", "I", "Ó", "O", "Ô", "O", "Õ", "O", "Ú", "U",
	)
	return replacer.Replace(s)
}

func foldDutch(s string) string {
	replacer := strings.NewReplacer(
		"ë", "e", "ï", "i", "ö", "o", "ü", "u", "á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
		"Ë", "E", "Ï", "I", "Ö", "O", "Ü", "U", "Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U",
		"ij", "y", "IJ", "Y",
	)
	return replacer.Replace(s)
}

// transliterateGreek romanizes the monotonic Greek alphabet (plus its
// common tonos-accented vowels) one letter at a time, the simplest
// Greeklish mapping and the one the original phonetic module's locale
// table used for "el".
func transliterateGreek(s string) string {
	replacer := strings.NewReplacer(
		"α", "a", "ά", "a", "β", "b", "γ", "g", "δ", "d",
		"ε", "e", "έ", "e", "ζ", "z", "η", "i", "ή", "i",
		"θ", "th", "ι", "i", "ί", "i", "ϊ", "i", "ΐ", "i",
		"κ", "k", "λ", "l", "μ", "m", "ν", "n", "ξ", "x",
		"ο", "o", "ό", "o", "π", "p", "ρ", "r",
		"σ", "s", "ς", "s", "τ", "t",
		"υ", "y", "ύ", "y", "ϋ", "y", "ΰ", "y",
		"φ", "f", "χ", "ch", "ψ", "ps", "ω", "o", "ώ", "o",
		"Α", "A", "Ά", "A", "Β", "B", "Γ", "G", "Δ", "D",
		"Ε", "E", "Έ", "E", "Ζ", "Z", "Η", "I", "Ή", "I",
		"Θ", "Th", "Ι", "I", "Ί", "I", "Κ", "K", "Λ", "L",
		"Μ", "M", "Ν", "N", "Ξ", "X", "Ο", "O", "Ό", "O",
		"Π", "P", "Ρ", "R", "Σ", "S", "Τ", "T",
		"Υ", "Y", "Ύ", "Y", "Φ", "F", "Χ", "Ch", "Ψ", "Ps", "Ω", "O", "Ώ", "O",
	)
	return replacer.Replace(s)
}

// transliterateJapanese romanizes the common hiragana/katakana syllables
// (Hepburn-style) before Soundex runs; kanji and rarer kana combinations
// pass through unchanged, the same graceful-degradation the original
// phonetic module's "ja" table used for characters outside its table.
func transliterateJapanese(s string) string {
	replacer := strings.NewReplacer(
		"あ", "a", "い", "i", "う", "u", "え", "e", "お", "o",
		"か", "ka", "き", "ki", "く", "ku", "け", "ke", "こ", "ko",
		"さ", "sa", "し", "shi", "す", "su", "せ", "se", "そ", "so",
		"た", "ta", "ち", "chi", "つ", "tsu", "て", "te", "と", "to",
		"な", "na", "に", "ni", "ぬ", "nu", "ね", "ne", "の", "no",
		"は", "ha", "ひ", "hi", "ふ", "fu", "へ", "he", "ほ", "ho",
		"ま", "ma", "み", "mi", "む", "mu", "め", "me", "も", "mo",
		"や", "ya", "ゆ", "yu", "よ", "yo",
		"ら", "ra", "り", "ri", "る", "ru", "れ", "re", "ろ", "ro",
		"わ", "wa", "を", "wo", "ん", "n",
		"が", "ga", "ぎ", "gi", "ぐ", "gu", "げ", "ge", "ご", "go",
		"ざ", "za", "じ", "ji", "ず", "zu", "ぜ", "ze", "ぞ", "zo",
		"だ", "da", "ぢ", "ji", "づ", "zu", "で", "de", "ど", "do",
		"ば", "ba", "び", "bi", "ぶ", "bu", "べ", "be", "ぼ", "bo",
		"ぱ", "pa", "ぴ", "pi", "ぷ", "pu", "ぺ", "pe", "ぽ", "po",
		"ア", "a", "イ", "i", "ウ", "u", "エ", "e", "オ", "o",
		"カ", "ka", "キ", "ki", "ク", "ku", "ケ", "ke", "コ", "ko",
		"サ", "sa", "シ", "shi", "ス", "su", "セ", "se", "ソ", "so",
		"タ", "ta", "チ", "chi", "ツ", "tsu", "テ", "te", "ト", "to",
		"ナ", "na", "ニ", "ni", "ヌ", "nu", "ネ", "ne", "ノ", "no",
		"ハ", "ha", "ヒ", "hi", "フ", "fu", "ヘ", "he", "ホ", "ho",
		"マ", "ma", "ミ", "mi", "ム", "mu", "メ", "me", "モ", "mo",
		"ヤ", "ya", "ユ", "yu", "ヨ", "yo",
		"ラ", "ra", "リ", "ri", "ル", "ru", "レ", "re", "ロ", "ro",
		"ワ", "wa", "ヲ", "wo", "ン", "n", "ー", "",
	)
	return replacer.Replace(s)
}

var soundexCode = map[byte]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

func soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var letters []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			letters = append(letters, s[i])
		}
	}
	if len(letters) == 0 {
		return ""
	}
	out := []byte{letters[0]}
	last := soundexCode[letters[0]]
	for _, c := range letters[1:] {
		code := soundexCode[c]
		if code != 0 && code != last {
			out = append(out, code)
		}
		if c != 'H' && c != 'W' {
			last = code
		}
		if len(out) == 4 {
			break
		}
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

// metaphoneFn implements a simplified Metaphone: drop non-letters, fold
// doubled consonants, and map remaining consonants through a small rule
// table. It favors covering the common English consonant digraphs over
// exhaustively replicating the Lawrence Philips original.
func metaphoneFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("METAPHONE", 1, len(a))
	}
	return value.String(metaphone(a[0].AsString())), nil
}

func metaphone(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsLetter(r) {
			continue
		}
		if i > 0 && r == runes[i-1] && r != 'C' {
			continue // drop doubled letters except CC
		}
		switch r {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				b.WriteRune(r)
			}
		case 'P':
			if i+1 < len(runes) && runes[i+1] == 'H' {
				b.WriteRune('F')
				i++
			} else {
				b.WriteRune('P')
			}
		case 'T':
			if i+1 < len(runes) && runes[i+1] == 'H' {
				b.WriteRune('0')
				i++
			} else {
				b.WriteRune('T')
			}
		case 'C':
			if i+1 < len(runes) && runes[i+1] == 'H' {
				b.WriteRune('X')
				i++
			} else if i+1 < len(runes) && (runes[i+1] == 'I' || runes[i+1] == 'E' || runes[i+1] == 'Y') {
				b.WriteRune('S')
			} else {
				b.WriteRune('K')
			}
		case 'W', 'H':
			// silent unless starting a syllable with a vowel following; skip
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// doubleMetaphoneFn returns a two-element array [primary, alternate]; this
// simplified port only diverges the alternate code for a leading "C"
// (hard vs soft), matching the original's most common disambiguation case.
func doubleMetaphoneFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("DOUBLE_METAPHONE", 1, len(a))
	}
	s := a[0].AsString()
	primary := metaphone(s)
	alt := primary
	upper := strings.ToUpper(strings.TrimSpace(s))
	if strings.HasPrefix(upper, "C") {
		alt = "S" + primary[minInt(1, len(primary)):]
	}
	return value.Array([]value.Value{value.String(primary), value.String(alt)}), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// cologneFn implements the Kölner Phonetik (Cologne phonetic) algorithm:
// a German-tuned digit code, context-sensitive like Soundex but with its
// own letter-to-digit table and a final "drop every 0" pass instead of
// Soundex's fixed-width padding.
func cologneFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("COLOGNE_PHONETIC", 1, len(a))
	}
	return value.String(cologne(a[0].AsString())), nil
}

func cologne(s string) string {
	s = strings.NewReplacer("ß", "SS", "ẞ", "SS").Replace(strings.ToUpper(s))
	var letters []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			letters = append(letters, s[i])
		}
	}
	n := len(letters)
	var codes []byte
	for i := 0; i < n; i++ {
		c := letters[i]
		var prev, next byte
		if i > 0 {
			prev = letters[i-1]
		}
		if i+1 < n {
			next = letters[i+1]
		}
		switch c {
		case 'A', 'E', 'I', 'J', 'O', 'U', 'Y':
			codes = append(codes, '0')
		case 'H':
			// no code, and does not break a run of equal digits
		case 'B':
			codes = append(codes, '1')
		case 'P':
			if next == 'H' {
				codes = append(codes, '3')
			} else {
				codes = append(codes, '1')
			}
		case 'D', 'T':
			if next == 'C' || next == 'S' || next == 'Z' {
				codes = append(codes, '8')
			} else {
				codes = append(codes, '2')
			}
		case 'F', 'V', 'W':
			codes = append(codes, '3')
		case 'G', 'K', 'Q':
			codes = append(codes, '4')
		case 'C':
			switch {
			case i == 0:
				if isCologneFrontVowel(next) || next == 'L' || next == 'R' {
					codes = append(codes, '4')
				} else {
					codes = append(codes, '8')
				}
			case prev == 'S' || prev == 'Z':
				codes = append(codes, '8')
			case isCologneFrontVowel(next):
				codes = append(codes, '4')
			default:
				codes = append(codes, '8')
			}
		case 'X':
			if prev == 'C' || prev == 'K' || prev == 'Q' {
				codes = append(codes, '8')
			} else {
				codes = append(codes, '4', '8')
			}
		case 'L':
			codes = append(codes, '5')
		case 'M', 'N':
			codes = append(codes, '6')
		case 'R':
			codes = append(codes, '7')
		case 'S', 'Z':
			codes = append(codes, '8')
		}
	}
	var collapsed []byte
	for i, c := range codes {
		if i == 0 || c != codes[i-1] {
			collapsed = append(collapsed, c)
		}
	}
	out := make([]byte, 0, len(collapsed))
	for _, c := range collapsed {
		if c != '0' {
			out = append(out, c)
		}
	}
	return string(out)
}

// isCologneFrontVowel reports whether c is one of A,H,K,O,Q,U,X, the set
// that keeps a preceding/following C coded as 4 rather than 8.
func isCologneFrontVowel(c byte) bool {
	switch c {
	case 'A', 'H', 'K', 'O', 'Q', 'U', 'X':
		return true
	}
	return false
}

// caverphoneFn implements Caverphone 2.0, a fixed-width (10 character)
// phonetic code developed for New Zealand English surnames: a long chain
// of ordered literal substitutions followed by vowel collapsing and
// duplicate-consonant squeezing.
func caverphoneFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("CAVERPHONE", 1, len(a))
	}
	return value.String(caverphone(a[0].AsString())), nil
}

var caverphoneDedupe = regexp.MustCompile(`([STPKFMN])\1+`)

func caverphone(s string) string {
	s = strings.ToLower(s)
	s = keepLetters(s)
	s = strings.TrimSuffix(s, "e")

	switch {
	case strings.HasPrefix(s, "cough"):
		s = "cou2f" + s[len("cough"):]
	case strings.HasPrefix(s, "rough"):
		s = "rou2f" + s[len("rough"):]
	case strings.HasPrefix(s, "tough"):
		s = "tou2f" + s[len("tough"):]
	case strings.HasPrefix(s, "enough"):
		s = "enou2f" + s[len("enough"):]
	case strings.HasPrefix(s, "trough"):
		s = "trou2f" + s[len("trough"):]
	}
	if strings.HasPrefix(s, "gn") {
		s = "2n" + s[2:]
	}
	s = strings.TrimSuffix(s, "mb") + strings.Repeat("2", boolToInt(strings.HasSuffix(s, "mb")))

	s = strings.ReplaceAll(s, "cq", "2q")
	s = strings.ReplaceAll(s, "ci", "si")
	s = strings.ReplaceAll(s, "ce", "se")
	s = strings.ReplaceAll(s, "cy", "sy")
	s = strings.ReplaceAll(s, "tch", "2ch")
	s = strings.ReplaceAll(s, "c", "k")
	s = strings.ReplaceAll(s, "q", "k")
	s = strings.ReplaceAll(s, "x", "k")
	s = strings.ReplaceAll(s, "v", "f")
	s = strings.ReplaceAll(s, "dg", "2g")
	s = strings.ReplaceAll(s, "tio", "sio")
	s = strings.ReplaceAll(s, "tia", "sia")
	s = strings.ReplaceAll(s, "d", "t")
	s = strings.ReplaceAll(s, "ph", "fh")
	s = strings.ReplaceAll(s, "b", "p")
	s = strings.ReplaceAll(s, "sh", "s2")
	s = strings.ReplaceAll(s, "z", "s")

	if len(s) > 0 && strings.ContainsRune("aeiou", rune(s[0])) {
		s = "A" + s[1:]
	}
	s = replaceVowelsExceptFirst(s)

	s = strings.ReplaceAll(s, "j", "y")
	if strings.HasPrefix(s, "y3") {
		s = "Y3" + s[2:]
	} else if strings.HasPrefix(s, "y") {
		s = "A" + s[1:]
	}
	s = strings.ReplaceAll(s, "y", "3")

	s = strings.ReplaceAll(s, "3gh3", "3kh3")
	s = strings.ReplaceAll(s, "gh", "22")
	s = strings.ReplaceAll(s, "g", "k")

	s = caverphoneDedupe.ReplaceAllString(strings.ToUpper(s), "$1")
	s = strings.ToLower(s)

	if strings.HasPrefix(s, "wh3") {
		s = "Wh3" + s[3:]
	}
	s = strings.TrimSuffix(s, "w")
	s = strings.ReplaceAll(s, "w", "2")

	if strings.HasPrefix(s, "h") {
		s = "A" + s[1:]
	}
	s = strings.ReplaceAll(s, "h", "2")

	s = strings.ReplaceAll(s, "2", "")
	s = strings.TrimSuffix(s, "3") + strings.Repeat("A", boolToInt(strings.HasSuffix(s, "3")))
	s = strings.ReplaceAll(s, "3", "")

	s = strings.ToUpper(s)
	if len(s) >= 10 {
		return s[:10]
	}
	return s + strings.Repeat("1", 10-len(s))
}

func replaceVowelsExceptFirst(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.WriteByte(s[0])
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == 'a' || c == 'e' || c == 'i' || c == 'o' || c == 'u' {
			b.WriteByte('3')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func keepLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nysiisFn implements NYSIIS (New York State Identification and
// Intelligence System): prefix/suffix transliteration, a per-character
// consonant pass, duplicate collapsing, and a 6-character truncation.
func nysiisFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("NYSIIS", 1, len(a))
	}
	return value.String(nysiis(a[0].AsString())), nil
}

func nysiis(s string) string {
	s = strings.ToUpper(s)
	s = keepLettersUpper(s)
	if s == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, "MAC"):
		s = "MCC" + s[3:]
	case strings.HasPrefix(s, "KN"):
		s = "NN" + s[2:]
	case strings.HasPrefix(s, "K"):
		s = "C" + s[1:]
	case strings.HasPrefix(s, "PH"), strings.HasPrefix(s, "PF"):
		s = "FF" + s[2:]
	case strings.HasPrefix(s, "SCH"):
		s = "SSS" + s[3:]
	}

	switch {
	case strings.HasSuffix(s, "EE"), strings.HasSuffix(s, "IE"):
		s = s[:len(s)-2] + "Y"
	case strings.HasSuffix(s, "DT"), strings.HasSuffix(s, "RT"), strings.HasSuffix(s, "RD"),
		strings.HasSuffix(s, "NT"), strings.HasSuffix(s, "ND"):
		s = s[:len(s)-2] + "D"
	}

	first := string(s[0])
	key := first
	runes := []byte(s)
	for i := 1; i < len(runes); i++ {
		c := runes[i]
		var prev byte
		if i > 0 {
			prev = runes[i-1]
		}
		var next byte
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		var code byte
		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			code = 'A'
		case 'Q':
			code = 'G'
		case 'Z':
			code = 'S'
		case 'M':
			code = 'N'
		case 'K':
			if next == 'N' {
				code = 'N'
			} else {
				code = 'C'
			}
		case 'S':
			if next == 'C' && i+2 < len(runes) && runes[i+2] == 'H' {
				code = 'S'
				runes[i+1] = 'S'
			} else {
				code = 'S'
			}
		case 'P':
			if next == 'H' {
				code = 'F'
				runes[i+1] = 'F'
			} else {
				code = 'P'
			}
		case 'H':
			if !isVowelByte(prev) || !isVowelByte(next) {
				if prev != 0 {
					code = prev
				} else {
					code = 'H'
				}
			} else {
				code = 'H'
			}
		case 'W':
			if isVowelByte(prev) {
				code = prev
			} else {
				code = 'W'
			}
		default:
			code = c
		}
		if code == 0 {
			continue
		}
		last := byte(0)
		if len(key) > 0 {
			last = key[len(key)-1]
		}
		if code != last {
			key += string(code)
		}
	}

	if strings.HasSuffix(key, "S") && len(key) > 1 {
		key = key[:len(key)-1]
	}
	if strings.HasSuffix(key, "AY") {
		key = key[:len(key)-2] + "Y"
	}
	if strings.HasSuffix(key, "A") && len(key) > 1 {
		key = key[:len(key)-1]
	}

	if len(key) > 6 {
		key = key[:6]
	}
	return key
}

func isVowelByte(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

func keepLettersUpper(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func levenshteinFn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("LEVENSHTEIN_DISTANCE", 2, len(a))
	}
	return value.Int(int64(levenshtein(a[0].AsString(), a[1].AsString()))), nil
}

func levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	n, m := len(r1), len(r2)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		cur[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = minOf3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[m]
}

func minOf3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func ngramSimilarityFn(a []value.Value) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr("NGRAM_SIMILARITY", 2, len(a))
	}
	n := 2
	if len(a) == 3 {
		n = int(a[2].ToFloat())
	}
	s1, s2 := ngrams(a[0].AsString(), n), ngrams(a[1].AsString(), n)
	if len(s1) == 0 && len(s2) == 0 {
		return value.Float(1), nil
	}
	if len(s1) == 0 || len(s2) == 0 {
		return value.Float(0), nil
	}
	shared := 0
	for g := range s1 {
		if s2[g] {
			shared++
		}
	}
	union := len(s1) + len(s2) - shared
	return value.Float(float64(shared) / float64(union)), nil
}

func ngrams(s string, n int) map[string]bool {
	r := []rune(strings.ToLower(s))
	out := map[string]bool{}
	if len(r) < n {
		if len(r) > 0 {
			out[string(r)] = true
		}
		return out
	}
	for i := 0; i+n <= len(r); i++ {
		out[string(r[i:i+n])] = true
	}
	return out
}
