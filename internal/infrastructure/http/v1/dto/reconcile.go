package dto

import "boigordo/internal/core/id"

// CleanupRequest soft-deletes flagged records.
type CleanupRequest struct {
	RecordIDs []id.ID `json:"recordIds" binding:"required,min=1"`
	Reason    string  `json:"reason" binding:"required"`
}
