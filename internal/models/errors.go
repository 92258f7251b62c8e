package models

import "errors"

// Sentinel errors for storage lookups
var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrJobNotFound   = errors.New("job not found")
)
