// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"
)

// ListEntriesRequest contains the query parameters for listing outbox entries.
type ListEntriesRequest struct {
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}

// Validate checks if the list entries request is valid.
func (r *ListEntriesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Limit,
			validation.Min(0),
			validation.Max(500),
		),
		validation.Field(&r.Status,
			validation.In("pending", "processing", "sent", "failed"),
		),
	)
}
