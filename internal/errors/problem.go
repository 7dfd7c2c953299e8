package errors

import (
	"encoding/json"
)

// Problem type URIs used in RFC 7807 responses.
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeUpstream         = "/errors/upstream"
	TypeInsufficientData = "/errors/insufficient-data"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
)

// ProblemDetails is an RFC 7807 problem document.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// MarshalJSON flattens extensions into the document.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a problem document.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}
