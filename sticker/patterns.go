package sticker

import (
	"regexp"
	"strings"
)

// Window sticker layouts differ by manufacturer. Each entry carries the
// regexes that cut the sticker text into its equipment sections; the
// capture group is the section body.
type manufacturerPatterns struct {
	standard *regexp.Regexp
	optional *regexp.Regexp
	safety   *regexp.Regexp
}

var sharedSafetyRe = regexp.MustCompile(`(?is)SAFETY(?:/SECURITY)?(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:TOTAL|$)`)

var patternsByMfr = map[string]manufacturerPatterns{
	"ford": {
		standard: regexp.MustCompile(`(?is)STANDARD EQUIPMENT\s*(?:INCLUDED AT NO EXTRA CHARGE|:)(.*?)(?:OPTIONAL|PRICE|TOTAL|$)`),
		optional: regexp.MustCompile(`(?is)OPTIONAL EQUIPMENT(?:/OTHER|/MISC)?(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:SUBTOTAL|TOTAL|$)`),
		safety:   sharedSafetyRe,
	},
	// General Motors: Chevrolet, Buick, GMC, Cadillac.
	"gm": {
		standard: regexp.MustCompile(`(?is)STANDARD (?:VEHICLE )?(?:EQUIPMENT|FEATURES)(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:OPTIONS|ADDED|TOTAL|$)`),
		optional: regexp.MustCompile(`(?is)(?:OPTIONAL|ADDED) (?:EQUIPMENT|FEATURES)(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:TOTAL|SUBTOTAL|$)`),
		safety:   sharedSafetyRe,
	},
	// Fiat Chrysler: Dodge, Jeep, Chrysler, RAM.
	"fca": {
		standard: regexp.MustCompile(`(?is)STANDARD EQUIPMENT(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:OPTIONAL|ADDED|TOTAL|$)`),
		optional: regexp.MustCompile(`(?is)OPTIONAL EQUIPMENT(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:TOTAL|SUBTOTAL|DESTINATION|$)`),
		safety:   sharedSafetyRe,
	},
	"toyota": {
		standard: regexp.MustCompile(`(?is)STANDARD(?:[^\n]*EQUIPMENT|[^\n]*FEATURES)(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:ACCESSORIES|OPTIONAL|ADDED|TOTAL|$)`),
		optional: regexp.MustCompile(`(?is)(?:OPTIONAL EQUIPMENT|ACCESSORIES)(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:TOTAL|SUBTOTAL|DELIVERY|$)`),
		safety:   sharedSafetyRe,
	},
	"honda": {
		standard: regexp.MustCompile(`(?is)STANDARD (?:FEATURES|EQUIPMENT)(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:ACCESSORIES|INSTALLED|TOTAL|$)`),
		optional: regexp.MustCompile(`(?is)(?:INSTALLED|ACCESSORIES|ADDED)(?:[^\n]*EQUIPMENT)?(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:TOTAL|SUBTOTAL|DESTINATION|$)`),
		safety:   sharedSafetyRe,
	},
	"nissan": {
		standard: regexp.MustCompile(`(?is)STANDARD(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:OPTIONAL|PACKAGES|TOTAL|$)`),
		optional: regexp.MustCompile(`(?is)(?:OPTIONAL|PACKAGES)(?:\s*:[^\n]*|\s*\n[^\n]*|\s*)([^=]*?)(?:TOTAL|DESTINATION|$)`),
		safety:   sharedSafetyRe,
	},
}

// mfrIdentifiers maps a pattern set to the brand names that select it.
var mfrIdentifiers = map[string][]string{
	"ford":   {"FORD", "BUILD FOR AMERICA", "LINCOLN"},
	"gm":     {"GENERAL MOTORS", "CHEVROLET", "BUICK", "GMC", "CADILLAC"},
	"fca":    {"CHRYSLER", "DODGE", "JEEP", "RAM", "FIAT", "MOPAR"},
	"toyota": {"TOYOTA", "LEXUS", "SCION"},
	"honda":  {"HONDA", "ACURA"},
	"nissan": {"NISSAN", "INFINITI"},
}

// mfrOrder keeps identification deterministic.
var mfrOrder = []string{"ford", "gm", "fca", "toyota", "honda", "nissan"}

// identifyManufacturer picks the pattern set whose brand names appear in
// the sticker text. Empty means no match; callers fall back to generic
// line extraction.
func identifyManufacturer(text string) string {
	upper := strings.ToUpper(text)
	for _, mfr := range mfrOrder {
		for _, id := range mfrIdentifiers[mfr] {
			if strings.Contains(upper, id) {
				return mfr
			}
		}
	}
	return ""
}

// sectionedFeature is one feature string plus the sticker section it was
// cut from. The safety section becomes a category hint downstream.
type sectionedFeature struct {
	Text    string
	Section string
}

var (
	bulletSplitRe = regexp.MustCompile(`\s*(?:•|\*|\d+\.)\s*`)
	bulletProbeRe = regexp.MustCompile(`•|\*|\d+\.`)
	priceOnlyRe   = regexp.MustCompile(`^[\d\s.,$]+$`)
	parenCodeRe   = regexp.MustCompile(`\s*\([^)]*\)`)
	priceRe       = regexp.MustCompile(`\$[\d,]+(\.\d{2})?`)
	inclPrefixRe  = regexp.MustCompile(`^(?:Inc(?:l)?|Included|STD|Standard):\s*`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
	headerLineRe  = regexp.MustCompile(`(?i)(?:TOTAL|SUBTOTAL|PRICE|MSRP|DESTINATION|DELIVERY|MANUFACTURER)`)
)

// parseSections applies manufacturer patterns to the full sticker text and
// returns sectioned features. Falls back to generic line extraction when no
// manufacturer matches or patterns yield nothing.
func parseSections(text string) []sectionedFeature {
	var out []sectionedFeature

	if mfr := identifyManufacturer(text); mfr != "" {
		p := patternsByMfr[mfr]
		out = append(out, sectionFeatures(text, p.standard, "Standard Equipment")...)
		out = append(out, sectionFeatures(text, p.optional, "Optional Equipment")...)
		out = append(out, sectionFeatures(text, p.safety, "Safety")...)
	}

	if len(out) == 0 {
		for _, line := range genericFeatures(text) {
			out = append(out, sectionedFeature{Text: line})
		}
	}
	return out
}

func sectionFeatures(text string, re *regexp.Regexp, section string) []sectionedFeature {
	m := re.FindStringSubmatch(text)
	if m == nil || len(m) < 2 {
		return nil
	}
	var out []sectionedFeature
	for _, f := range parseFeatureList(strings.TrimSpace(m[1])) {
		out = append(out, sectionedFeature{Text: f, Section: section})
	}
	return out
}

// parseFeatureList splits a section body on bullets when present,
// otherwise on newlines, dropping prices and fragments.
func parseFeatureList(section string) []string {
	var items []string
	if bulletProbeRe.MatchString(section) {
		items = bulletSplitRe.Split(section, -1)
	} else {
		items = strings.Split(section, "\n")
	}

	var features []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || len(item) < 3 || priceOnlyRe.MatchString(item) {
			continue
		}
		if f := cleanFeatureText(item); f != "" {
			features = append(features, f)
		}
	}
	return features
}

// genericFeatures pulls plausible feature lines from unstructured text
// when no manufacturer section layout is recognized.
func genericFeatures(text string) []string {
	var features []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) < 5 || priceOnlyRe.MatchString(line) {
			continue
		}
		if headerLineRe.MatchString(line) {
			continue
		}
		if f := cleanFeatureText(line); f != "" {
			features = append(features, f)
		}
	}
	return features
}

// cleanFeatureText strips part codes, prices, and inclusion prefixes.
func cleanFeatureText(feature string) string {
	feature = strings.TrimSpace(feature)
	feature = parenCodeRe.ReplaceAllString(feature, "")
	feature = priceRe.ReplaceAllString(feature, "")
	feature = inclPrefixRe.ReplaceAllString(feature, "")
	feature = spaceRunRe.ReplaceAllString(feature, " ")
	return strings.TrimSpace(feature)
}
