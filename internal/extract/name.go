package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/biosbias/internal/model"
)

// Honorifics, roles and bio headings that may precede a name
const namePrefixes = `adjunct|artist|assistant|associate|attorney|author|bio|biography|brief bio|brief biography|` +
	`biographical sketch|br|brother|chancellor|chaplain|chapln|col|colonel|councillor|currently|description|` +
	`director|doctor|dr|experience|facilitator|father|fr|gov|governor|host|image|instructor|lecturer|madam|` +
	`madame|maj|miss|missus|mister|mme|monsieur|monsignor|mr|mrs|ms|msgr|note|now|pastor|plaintiff|pres|` +
	`presenter|president|prince|principal|prof|professionally|professor|profile|rabbi|reader|rep|` +
	`representative|respondent|rev|reverend|reviewer|saint|sen|senator|senor|senora|senorita|sgt|sir|` +
	`sister|speaker|sr|sra|srta|st|the hon|the honorable|today`

// Generational suffixes and credentials that may follow a name
const nameSuffixes = `\(eae\)|[a-z]|ab|abpp|aia|ao|apn|aprn|arnp|asid|asla|ba|bs|bsn|ca|cbe|ccrn|cde|cdn|cdw|ceo|` +
	`cfo|cipd|clt|cnm|cnp|cpa|cpnp|crnp|csat|cso|cssd|dc|dds|djb|dmd|dnp|e\-?ryt[\- \d]*|edd|esq|faan|facs|` +
	`faia|fca|fnp|fnp-bc|fnp-c|frcs|ii|iii|iv|jd|jg|jr|lac|ladc|lcpc|lcsw|ld|ldn|licsw|ll|llm|llp|lmft|lmhc|` +
	`lmt|lp|lpc|ma|mba|mc|md|mfa|mft|mlc|mms|mn|mpas|mph|ms|msn|mw|ncarb|nd|np|np-c|pa-c|pa\-c|ph|phd|pla|` +
	`pm|psy|psyd|ra|rcyt[\- \d]*|rd|rdn|riba|rla|rn|rn\-bc|ryt|sr`

// Lower-case letters allowed inside name parts
const nameLower = `a-zâêîôûŵŷäëïöüẅÿàèìòùẁỳáéíóúẃý`

// A capitalized, optionally hyphenated name part
const namePart = `[A-Z][` + nameLower + `]+(?:\-[A-Z][` + nameLower + `]+)*`

var (
	namePrefixRegex = regexp.MustCompile(`(?i)^[^a-z]*(?:\b(?:[a-z]|` + namePrefixes + `)\b[^a-z]*)*`)

	nameKillRegex = regexp.MustCompile(`(?i)^(?:about|abstract|additionally|although|and|but|by|comments|example|` +
		`he|however|plot|review|she|source|story|summary|synopsis|the|there|today|when|while|yes)\b`)

	// Separator classes include backspace (\x08)
	nameSuffixRegex = regexp.MustCompile(`(?i)(?:[\x08(,. ]+(?:` + nameSuffixes + `)[\x08., )]*)*$`)

	nameRegex = regexp.MustCompile(`^(` + namePart + `)` +
		`( +[A-Z](?:\.|[` + nameLower + `]*))?` +
		`((?: van)? +(?:Mc|De|O')?` + namePart + `)$`)
)

// ExtractName parses a personal name from the text that precedes "is a".
// The text goes through four stages: prefix strip, kill-word check, suffix
// strip and the structural name match.
func ExtractName(preceding string) (model.Name, bool) {
	s := stripPrefixes(preceding)
	if isKilled(s) {
		return model.Name{}, false
	}
	return matchName(stripSuffixes(s))
}

// stripPrefixes drops leading non-letters, single letters and honorific or
// role words ("Dr.", "Prof", "The Hon", "Bio:") anchored at the start.
func stripPrefixes(s string) string {
	loc := namePrefixRegex.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[loc[1]:]
}

// isKilled reports whether s opens with a function word that means the text
// before "is a" is a sentence fragment rather than a name.
func isKilled(s string) bool {
	return nameKillRegex.MatchString(s)
}

// stripSuffixes drops the trailing run of credentials and generational
// suffixes (", PhD", " Jr.", " III") anchored at the end.
func stripSuffixes(s string) string {
	loc := nameSuffixRegex.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]]
}

// matchName matches "First [Middle] Last" exactly. Parts are trimmed and
// periods are removed so "J." becomes "J".
func matchName(s string) (model.Name, bool) {
	m := nameRegex.FindStringSubmatch(s)
	if m == nil {
		return model.Name{}, false
	}

	var name model.Name
	for i := range name {
		name[i] = strings.ReplaceAll(strings.TrimSpace(m[i+1]), ".", "")
	}
	return name, true
}
