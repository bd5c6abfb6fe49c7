package detect

import "strings"

// EntityLabel is a recogniser category after normalisation.
type EntityLabel string

const (
	LabelPerson       EntityLabel = "PERSON"
	LabelOrganization EntityLabel = "ORGANIZATION"
	LabelLocation     EntityLabel = "LOCATION"
	LabelDate         EntityLabel = "DATE"
	LabelFacility     EntityLabel = "FACILITY"
	LabelGroup        EntityLabel = "GROUP"
	LabelMoney        EntityLabel = "MONEY"
	LabelOther        EntityLabel = "OTHER"
)

// DefaultLabels is the allow-list used when none is configured.
var DefaultLabels = []EntityLabel{LabelPerson, LabelOrganization, LabelLocation, LabelDate, LabelFacility}

var labelAliases = map[string]EntityLabel{
	"PER":          LabelPerson,
	"PERSON":       LabelPerson,
	"ORG":          LabelOrganization,
	"ORGANIZATION": LabelOrganization,
	"ORGANISATION": LabelOrganization,
	"GPE":          LabelLocation,
	"LOC":          LabelLocation,
	"LOCATION":     LabelLocation,
	"FAC":          LabelFacility,
	"FACILITY":     LabelFacility,
	"DATE":         LabelDate,
	"NORP":         LabelGroup,
	"GROUP":        LabelGroup,
	"MONEY":        LabelMoney,
}

// NormalizeLabel maps a recogniser-native label (spaCy "PER", "GPE", ...)
// onto the label set. Unknown labels become LabelOther.
func NormalizeLabel(name string) EntityLabel {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.TrimPrefix(strings.TrimPrefix(name, "B-"), "I-")
	if l, ok := labelAliases[name]; ok {
		return l
	}
	return LabelOther
}

// ParseLabels normalises a configured allow-list, dropping duplicates.
func ParseLabels(names []string) []EntityLabel {
	seen := make(map[EntityLabel]bool, len(names))
	out := make([]EntityLabel, 0, len(names))
	for _, n := range names {
		l := NormalizeLabel(n)
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
