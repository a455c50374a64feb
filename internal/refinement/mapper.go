package refinement

// Mapper maps finding kinds to the rubric sections a revision should touch.
type Mapper struct {
	mapping map[string][]string
}

// NewMapper creates a new rubric section mapper.
func NewMapper() *Mapper {
	return &Mapper{
		mapping: map[string][]string{
			KindSemanticDegradation: {"phrases", "semantic_threshold"},
			KindHumanDisagreement:   {"weights", "stage_thresholds"},
			KindWeakEvidence:        {"phrases"},
		},
	}
}

// MapKindToSections returns the rubric sections that should be reviewed for a
// given finding kind.
func (m *Mapper) MapKindToSections(kind string) []string {
	sections, exists := m.mapping[kind]
	if !exists {
		return []string{}
	}
	// Return a copy to avoid external modification
	result := make([]string, len(sections))
	copy(result, sections)
	return result
}
