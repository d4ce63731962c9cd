package pkg

import "time"

// Role identifies which side of the service a registered identity belongs to.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Doctor is a directory entry for a medical professional.
type Doctor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Profession string `json:"profession"`
	Phone      string `json:"phone,omitempty"`
}

// ConnectionStatus is the lifecycle state of a doctor-patient connection.
// Connections only move forward: pending -> connected. There is no
// disconnect path.
type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConnected ConnectionStatus = "connected"
)

// Connection is the authorization relationship between a patient and a
// doctor. It gates both chat and call eligibility.
type Connection struct {
	ID        string           `json:"id"`
	PatientID string           `json:"patient_id"`
	DoctorID  string           `json:"doctor_id"`
	Status    ConnectionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// MemoryEntry is one summarized prior exchange. Entries are append-only and
// immutable once written; they are read back in creation order to rebuild
// context for future assistant requests.
type MemoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Exchange is one completed assistant turn: the user's message and the
// assistant's reply.
type Exchange struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisResult is the classification stage's verdict on a user message.
// It lives for exactly one pipeline invocation and is never stored.
type AnalysisResult struct {
	NeedsSearch          bool   `json:"needsSearch"`
	SearchQuery          string `json:"searchQuery"`
	IsTherapyRelated     bool   `json:"isTherapyRelated"`
	RecommendBookOrVideo bool   `json:"recommendBookOrVideo"`
	RecommendationTopic  string `json:"recommendationTopic"`
}

// SearchResult is one organic web-search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}
