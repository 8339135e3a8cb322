package model

import (
	"time"

	"github.com/google/uuid"
)

// NewRunID generates a run id like dh-20260115-3f2a91bc.
func NewRunID() string {
	return "dh-" + time.Now().UTC().Format("20060102") + "-" + uuid.New().String()[:8]
}

// NewReviewID generates a review item id like rv-dh-20260115-8c01f2.
func NewReviewID() string {
	return "rv-dh-" + time.Now().UTC().Format("20060102") + "-" + uuid.New().String()[:6]
}
