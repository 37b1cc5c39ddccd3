package archive

import "time"

// TranscriptVersion is the schema version written with every record.
const TranscriptVersion = "1.0"

// TranscriptRecord is a handed-off conversation as stored in S3. The patient
// phone is only kept as a hash; message bodies are scrubbed before upload.
type TranscriptRecord struct {
	Version      string    `json:"version"`
	ClinicID     string    `json:"clinic_id"`
	PhoneHash    string    `json:"phone_hash"`
	Reason       string    `json:"reason"`
	HandedOffAt  time.Time `json:"handed_off_at"`
	ArchivedAt   time.Time `json:"archived_at"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ManifestEntry is one JSONL line in a clinic's monthly manifest.
type ManifestEntry struct {
	S3Key        string `json:"s3_key"`
	PhoneHash    string `json:"phone_hash"`
	Reason       string `json:"reason"`
	ArchivedAt   string `json:"archived_at"`
	MessageCount int    `json:"message_count"`
}
