package expander

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"nyayasetu/internal/config"
)

func TestExpandMurderAppendsSectionCodes(t *testing.T) {
	e := NewExpander(nil)

	result := e.Expand("punishment for murder")

	assert.Equal(t, "punishment for murder", result.Original)
	assert.True(t, strings.HasPrefix(result.Expanded, "punishment for murder"))
	assert.Contains(t, result.Expanded, "Section 302")
	assert.Contains(t, result.Expanded, "Section 103")
	assert.Contains(t, result.Expanded, "homicide")
	assert.Equal(t, []string{"murder"}, result.Matched)
}

func TestExpandIsCaseInsensitive(t *testing.T) {
	e := NewExpander(nil)

	result := e.Expand("What is an FIR?")
	assert.Contains(t, result.Expanded, "First Information Report")

	lower := e.Expand("what is an fir?")
	assert.Contains(t, lower.Expanded, "First Information Report")
}

func TestExpandMultipleEntriesFire(t *testing.T) {
	e := NewExpander(nil)

	result := e.Expand("bail after chargesheet")

	assert.Contains(t, result.Matched, "bail")
	assert.Contains(t, result.Matched, "chargesheet")
	assert.Contains(t, result.Expanded, "Section 437 CrPC")
	assert.Contains(t, result.Expanded, "Section 173 CrPC")
}

func TestExpandNoMatchIsIdentity(t *testing.T) {
	e := NewExpander(nil)

	result := e.Expand("property dispute in Ahmedabad")

	assert.Equal(t, result.Original, result.Expanded)
	assert.Empty(t, result.Matched)
}

func TestExpandSectionNumberMatch(t *testing.T) {
	e := NewExpander(nil)

	result := e.Expand("case under 302")
	assert.Contains(t, result.Expanded, "Section 103 BNS")
	assert.Contains(t, result.Matched, "302")
}

func TestExpandMapsNewCodesBack(t *testing.T) {
	e := NewExpander(nil)

	result := e.Expand("punishment under Section 103 BNS")
	assert.Contains(t, result.Expanded, "Section 302 IPC")
	assert.Contains(t, result.Matched, "103 bns")
}

func TestExpandConfiguredEntries(t *testing.T) {
	e := NewExpander([]config.ThesaurusEntry{
		{Term: "dowry", Synonyms: []string{"Section 498A IPC", "Section 85 BNS"}},
	})

	result := e.Expand("dowry harassment case")

	assert.Contains(t, result.Expanded, "Section 498A IPC")
	assert.Contains(t, result.Expanded, "Section 85 BNS")
	assert.Contains(t, result.Matched, "dowry")
}
