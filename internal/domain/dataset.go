package domain

import (
	"encoding/json"
	"time"
)

// Dataset is an uploaded, already-parsed data document owned by one
// organization. The pipeline treats ParsedData as opaque.
type Dataset struct {
	ID             string
	OrganizationID string
	Name           string
	Category       Category
	ParsedData     json.RawMessage
	CreatedAt      time.Time
}

// Organization carries the fields the pipeline reads at submission time.
type Organization struct {
	ID       string
	Name     string
	Branding Branding
}
