package profile

import (
	"strings"
)

// Semantic tags applied to text columns.
const (
	TagPerson       = "person"
	TagOrganization = "organization"
	TagLocation     = "location"
)

// The gazetteers are deliberately small: they only need to catch columns
// whose sampled values are dominated by one kind of proper noun, not to
// recognize arbitrary entities.

var personFirstNames = map[string]struct{}{
	"james": {}, "mary": {}, "john": {}, "patricia": {}, "robert": {},
	"jennifer": {}, "michael": {}, "linda": {}, "william": {}, "elizabeth": {},
	"david": {}, "barbara": {}, "richard": {}, "susan": {}, "joseph": {},
	"jessica": {}, "thomas": {}, "sarah": {}, "charles": {}, "karen": {},
	"maria": {}, "anna": {}, "carlos": {}, "luis": {}, "ahmed": {},
	"mohammed": {}, "chen": {}, "wei": {}, "yuki": {}, "hiroshi": {},
}

var orgSuffixes = []string{
	" inc", " inc.", " llc", " ltd", " ltd.", " corp", " corp.", " co.",
	" gmbh", " ag", " sa", " plc", " group", " holdings", " industries",
	" limited", " company", " partners",
}

var locationNames = map[string]struct{}{
	"london": {}, "paris": {}, "berlin": {}, "madrid": {}, "rome": {},
	"tokyo": {}, "beijing": {}, "shanghai": {}, "mumbai": {}, "delhi": {},
	"moscow": {}, "sydney": {}, "toronto": {}, "chicago": {}, "boston": {},
	"seattle": {}, "austin": {}, "denver": {}, "miami": {}, "atlanta": {},
	"usa": {}, "uk": {}, "france": {}, "germany": {}, "spain": {},
	"italy": {}, "japan": {}, "china": {}, "india": {}, "brazil": {},
	"canada": {}, "australia": {}, "mexico": {}, "netherlands": {},
	"new york": {}, "los angeles": {}, "san francisco": {}, "hong kong": {},
}

// DetectSemanticTags runs the gazetteer NER over sampled strings. A tag is
// applied when at least 30% of the samples match its gazetteer. No text
// samples yields no tags.
func DetectSemanticTags(samples []string) []string {
	if len(samples) == 0 {
		return nil
	}

	var persons, orgs, locations int
	for _, s := range samples {
		lower := strings.ToLower(strings.TrimSpace(s))
		if lower == "" {
			continue
		}
		if matchesPerson(lower) {
			persons++
		}
		if matchesOrganization(lower) {
			orgs++
		}
		if _, ok := locationNames[lower]; ok {
			locations++
		}
	}

	threshold := (len(samples)*3 + 9) / 10
	var tags []string
	if persons >= threshold && persons > 0 {
		tags = append(tags, TagPerson)
	}
	if orgs >= threshold && orgs > 0 {
		tags = append(tags, TagOrganization)
	}
	if locations >= threshold && locations > 0 {
		tags = append(tags, TagLocation)
	}
	return tags
}

func matchesPerson(lower string) bool {
	first, _, _ := strings.Cut(lower, " ")
	_, ok := personFirstNames[first]
	return ok
}

func matchesOrganization(lower string) bool {
	for _, suffix := range orgSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
