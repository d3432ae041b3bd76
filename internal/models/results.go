package models

// AccountStatus is the validation outcome for one side of an account pair.
type AccountStatus struct {
	IsValid      bool   `json:"isValid"`
	LocationName string `json:"locationName,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ValidationResult pairs the source and destination outcomes.
type ValidationResult struct {
	SourceAccount      AccountStatus `json:"sourceAccount"`
	DestinationAccount AccountStatus `json:"destinationAccount"`
}

// IsValid reports whether both accounts passed.
func (v ValidationResult) IsValid() bool {
	return v.SourceAccount.IsValid && v.DestinationAccount.IsValid
}

// AnalysisResult holds advisory per-category counts for a source tenant.
type AnalysisResult struct {
	DataCounts        map[Category]int `json:"dataCounts"`
	EstimatedDuration int              `json:"estimatedDuration"` // minutes
	Warnings          []string         `json:"warnings"`
}

// TotalRecords sums the counts over every category.
func (a AnalysisResult) TotalRecords() int {
	total := 0
	for _, n := range a.DataCounts {
		total += n
	}
	return total
}
