package models

import "errors"

var (
	// ErrInsufficientData: the series or feature frame is too short to model.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrModelFit: no candidate model could be fitted, or prediction failed.
	ErrModelFit = errors.New("model fit failed")
	// ErrInvalidStrategy: the strategy selector token is unknown.
	ErrInvalidStrategy = errors.New("invalid strategy")
	// ErrDataFormat: the input table is malformed.
	ErrDataFormat = errors.New("malformed input table")
)

// IsCategoryError reports whether err only invalidates a single category.
func IsCategoryError(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrModelFit)
}

// IsClientError reports whether err is caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStrategy) || errors.Is(err, ErrDataFormat)
}
