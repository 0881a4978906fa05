package contracts

import "time"

// Contract is a reviewed agreement record. All fields are declared up front;
// optional ones stay zero-valued rather than living in ad hoc side maps.
type Contract struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title"`
	PartyName    string    `json:"partyName,omitempty"`
	ContractType string    `json:"contractType"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document is an uploaded file attached to a contract, plus whatever text
// extraction has produced for it.
type Document struct {
	ID               string     `json:"id"`
	ContractID       string     `json:"contractId"`
	UserID           string     `json:"userId"`
	FileName         string     `json:"fileName"`
	OriginalFilename string     `json:"originalFilename,omitempty"`
	MimeType         string     `json:"mimeType"`
	SizeBytes        int64      `json:"sizeBytes"`
	StorageProvider  string     `json:"storageProvider"`
	StorageKey       string     `json:"storageKey,omitempty"`
	ExtractedText    string     `json:"-"`
	ExtractMethod    string     `json:"extractMethod,omitempty"`
	PageCount        int        `json:"pageCount,omitempty"`
	OCRConfidence    float64    `json:"ocrConfidence,omitempty"`
	ExtractedAt      *time.Time `json:"extractedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

const (
	StatusDraft     = "draft"
	StatusUploaded  = "uploaded"
	StatusAnalyzing = "analyzing"
	StatusReviewed  = "reviewed"
)
