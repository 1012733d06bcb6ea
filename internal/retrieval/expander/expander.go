package expander

import (
	"strings"

	"nyayasetu/internal/config"
	"nyayasetu/internal/models"
)

// entry is one thesaurus rule: when the term occurs in the query as a
// case-insensitive substring, the synonyms are appended.
type entry struct {
	term     string
	synonyms string
}

// builtinEntries covers common legal terms and the IPC to BNS section-code
// renumbering. Section numbers double as terms so bare "302" queries still
// reach both codes.
var builtinEntries = []entry{
	{"murder", "Section 302 IPC Section 103 BNS homicide killing"},
	{"theft", "Section 379 IPC Section 303 BNS stealing larceny"},
	{"bail", "anticipatory bail regular bail Section 437 CrPC"},
	{"chargesheet", "Section 173 CrPC prosecution complaint"},
	{"fir", "First Information Report Section 154 CrPC"},
	{"302", "Section 302 IPC Section 103 BNS murder"},
	{"304", "Section 304 IPC culpable homicide"},
	{"376", "Section 376 IPC Section 63 BNS rape sexual assault"},
	{"103 bns", "Section 302 IPC murder"},
	{"303 bns", "Section 379 IPC theft"},
	{"63 bns", "Section 376 IPC rape"},
}

// Expander appends legal synonyms and section codes to queries. It is pure
// and stateless; a disabled expander simply passes the query through.
type Expander struct {
	entries []entry
}

// NewExpander builds an Expander from the built-in thesaurus plus any entries
// from configuration. Configured entries are appended after the built-ins, so
// firing order stays deterministic.
func NewExpander(extra []config.ThesaurusEntry) *Expander {
	entries := make([]entry, 0, len(builtinEntries)+len(extra))
	entries = append(entries, builtinEntries...)
	for _, e := range extra {
		entries = append(entries, entry{term: e.Term, synonyms: strings.Join(e.Synonyms, " ")})
	}
	return &Expander{entries: entries}
}

// Expand matches every thesaurus term against the query and appends all
// matched synonyms. The original query text is never removed or reordered.
func (e *Expander) Expand(query string) models.QueryExpansion {
	lower := strings.ToLower(query)

	expanded := query
	var matched []string
	for _, ent := range e.entries {
		if strings.Contains(lower, strings.ToLower(ent.term)) {
			expanded = expanded + " " + ent.synonyms
			matched = append(matched, ent.term)
		}
	}

	return models.QueryExpansion{
		Original: query,
		Expanded: expanded,
		Matched:  matched,
	}
}
