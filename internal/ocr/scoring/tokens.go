package scoring

import (
	_ "embed"
	"regexp"
	"strings"
	"unicode"
)

//go:embed lexicon.txt
var lexiconRaw string

var lexicon = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(lexiconRaw) {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}()

var (
	numericRe = regexp.MustCompile(`^[$]?\d[\d,]*(\.\d+)?%?$`)
	dateRe    = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}$`)
	ordinalRe = regexp.MustCompile(`^\d+(st|nd|rd|th)$`)
	// Parcel and reception numbers such as R0123456 or B12.
	identRe = regexp.MustCompile(`^[A-Za-z]{1,3}\d+$`)
)

const edgePunct = ".,;:!?\"'()[]{}<>`"

// tokenize splits text into whitespace tokens with surrounding punctuation removed.
// Page markers are skipped.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == "---" && i+3 < len(fields) && fields[i+1] == "PAGE" && fields[i+3] == "---" {
			i += 3
			continue
		}
		tok := strings.Trim(f, edgePunct)
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// recognizedWeight is 1 for dictionary words and numbers, 0.5 for plausible
// words and 0 otherwise.
func recognizedWeight(tok string) float64 {
	if numericRe.MatchString(tok) || dateRe.MatchString(tok) {
		return 1
	}
	lower := strings.ToLower(tok)
	if ordinalRe.MatchString(lower) || identRe.MatchString(tok) {
		return 1
	}
	if _, ok := lexicon[lower]; ok {
		return 1
	}
	// hyphenated words count when every part is known
	if strings.Contains(lower, "-") {
		parts := strings.Split(lower, "-")
		known := true
		for _, p := range parts {
			if _, ok := lexicon[p]; !ok {
				known = false
				break
			}
		}
		if known {
			return 1
		}
	}
	if isWordShaped(lower) {
		return 0.5
	}
	return 0
}

func isWordShaped(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return hasVowel(tok) && longestConsonantRun(tok) < 4
}

func isGarbled(tok string) bool {
	if numericRe.MatchString(tok) || dateRe.MatchString(tok) || ordinalRe.MatchString(strings.ToLower(tok)) || identRe.MatchString(tok) {
		return false
	}
	if mixesLettersAndDigits(tok) {
		return true
	}
	if repeatedLetterRun(tok) >= 3 {
		return true
	}
	if hasSymbolRun(tok) {
		return true
	}
	letters := lettersOnly(tok)
	if len(letters) >= 5 && len(letters) == len([]rune(tok)) && !hasVowel(letters) {
		return true
	}
	return false
}

func mixesLettersAndDigits(tok string) bool {
	var letters, digits bool
	for _, r := range tok {
		switch {
		case unicode.IsLetter(r):
			letters = true
		case unicode.IsDigit(r):
			digits = true
		}
	}
	return letters && digits
}

func repeatedLetterRun(tok string) int {
	best, run := 0, 0
	var prev rune
	for i, r := range strings.ToLower(tok) {
		if i > 0 && r == prev && unicode.IsLetter(r) {
			run++
		} else {
			run = 1
		}
		if run > best && unicode.IsLetter(r) {
			best = run
		}
		prev = r
	}
	return best
}

// hasSymbolRun reports three or more consecutive symbols that are not a plain
// separator line such as "----" or "....".
func hasSymbolRun(tok string) bool {
	runes := []rune(tok)
	start := -1
	for i := 0; i <= len(runes); i++ {
		if i < len(runes) && isSymbol(runes[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= 3 && !isSeparator(runes[start:i]) {
			return true
		}
		start = -1
	}
	return false
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func isSeparator(run []rune) bool {
	first := run[0]
	if !strings.ContainsRune("-_.=*", first) {
		return false
	}
	for _, r := range run {
		if r != first {
			return false
		}
	}
	return true
}

func hasVowel(s string) bool {
	return strings.ContainsAny(strings.ToLower(s), "aeiouy")
}

func longestConsonantRun(s string) int {
	best, run := 0, 0
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) && !strings.ContainsRune("aeiouy", r) {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return best
}

func lettersOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
