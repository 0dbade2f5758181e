package medication

import "strings"

var (
	mentionNumberPrefixes = []string{"1.", "2.", "3.", "4.", "5."}
	mentionFormPrefixes   = []string{"tab", "cap", "syr", "inj"}
	doseTokens            = []string{"mg", "ml", "strength"}
	frequencyTokens       = []string{"once", "twice", "three", "every", "times a day", "sos"}
	instructionTokens     = []string{"gargle", "with", "after meals", "as needed"}
)

// ParseFreeText extracts medication mentions from prescription text with
// line heuristics: a numbered or form-prefixed line ("1.", "Tab.", "Cap.",
// "Syr.", "Inj.", or anything containing "tablet") starts a new mention;
// subsequent lines fill its dose, frequency, and instructions. Lines that
// match nothing (quantities, refills, general advice) are ignored.
func ParseFreeText(text string) []Mention {
	var meds []Mention
	var current *Mention
	for _, raw := range strings.Split(text, "\n") {
		ln := strings.TrimSpace(raw)
		if ln == "" {
			continue
		}
		lower := strings.ToLower(ln)
		switch {
		case startsMention(lower):
			if current != nil {
				meds = append(meds, *current)
			}
			name := strings.TrimLeft(ln, "0123456789. ")
			name = strings.ReplaceAll(name, "Tab.", "")
			name = strings.ReplaceAll(name, "Cap.", "")
			name = strings.ReplaceAll(name, "Syr.", "")
			current = &Mention{Name: strings.TrimSpace(name)}
		case current != nil && containsAny(lower, doseTokens):
			current.Dose = ln
		case current != nil && containsAny(lower, frequencyTokens):
			current.Frequency = ln
		case current != nil && containsAny(lower, instructionTokens):
			if current.Instructions != "" {
				current.Instructions += " " + ln
			} else {
				current.Instructions = ln
			}
		}
	}
	if current != nil {
		meds = append(meds, *current)
	}
	for i := range meds {
		meds[i].Name = strings.TrimSpace(meds[i].Name)
		meds[i].Dose = strings.TrimSpace(meds[i].Dose)
		meds[i].Frequency = strings.TrimSpace(meds[i].Frequency)
	}
	return meds
}

func startsMention(lower string) bool {
	for _, p := range mentionNumberPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, p := range mentionFormPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.Contains(lower, "tablet")
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
