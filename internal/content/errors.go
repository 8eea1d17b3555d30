package content

import "errors"

var (
	errTitleRequired      = errors.New("content: title is required")
	errTitleTooLong       = errors.New("content: title exceeds 500 characters")
	errDescriptionTooLong = errors.New("content: description exceeds 5000 characters")
	errInvalidCategory    = errors.New("content: category is not one of the closed set")
	errInvalidStatus      = errors.New("content: status is not one of the closed set")
)
