package models

import "time"

// DocumentCategory identifies the kind of identity document an extraction came from
type DocumentCategory string

const (
	CategoryPassport     DocumentCategory = "PASSPORT"
	CategoryNationalID   DocumentCategory = "NATIONAL_ID"
	CategoryTradeLicense DocumentCategory = "TRADE_LICENSE"
	CategoryVisa         DocumentCategory = "VISA"
	CategoryLaborCard    DocumentCategory = "LABOR_CARD"
	CategoryOther        DocumentCategory = "OTHER"
)

// ParseDocumentCategory maps free-form input onto a known category, defaulting to OTHER
func ParseDocumentCategory(s string) DocumentCategory {
	switch c := DocumentCategory(normalizeCategory(s)); c {
	case CategoryPassport, CategoryNationalID, CategoryTradeLicense, CategoryVisa, CategoryLaborCard:
		return c
	default:
		return CategoryOther
	}
}

func normalizeCategory(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z':
			out = append(out, ch-'a'+'A')
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			out = append(out, ch)
		case ch == ' ' || ch == '-' || ch == '_':
			if len(out) > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '_' {
		out = out[:len(out)-1]
	}
	return string(out)
}

// ExtractedField is one OCR field with its 0..100 confidence
type ExtractedField struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// DocumentExtraction is the per-document output of the extraction pipeline
type DocumentExtraction struct {
	DocumentID        string                    `json:"document_id" validate:"required"`
	FileName          string                    `json:"file_name"`
	ExtractedName     *string                   `json:"extracted_name,omitempty"`
	ExtractedIDNumber *string                   `json:"extracted_id_number,omitempty"`
	Fields            map[string]ExtractedField `json:"fields,omitempty"`
}

// DefaultNameConfidence is used when a document carries no name-bearing field
const DefaultNameConfidence = 0.5

// nameFieldKeys are checked in order when looking for the field the extracted name came from
var nameFieldKeys = []string{"name", "full_name", "fullName", "holder_name", "applicant_name"}

func (d DocumentExtraction) Name() string {
	if d.ExtractedName == nil {
		return ""
	}
	return *d.ExtractedName
}

func (d DocumentExtraction) IDNumber() string {
	if d.ExtractedIDNumber == nil {
		return ""
	}
	return *d.ExtractedIDNumber
}

// NameConfidence returns the 0..1 confidence of the document's name-bearing field.
func (d DocumentExtraction) NameConfidence() float64 {
	for _, key := range nameFieldKeys {
		if f, ok := d.Fields[key]; ok && f.Confidence > 0 {
			return f.Confidence / 100
		}
	}
	return DefaultNameConfidence
}

// Contribution is one document's raw fields offered to the aggregator
type Contribution struct {
	DocumentID  string         `json:"document_id" validate:"required"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Confidence  float64        `json:"confidence" validate:"gte=0,lte=100"`
	Fields      map[string]any `json:"fields"`
}
