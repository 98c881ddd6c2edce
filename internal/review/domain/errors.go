package domain

import "errors"

var (
	ErrInvalidStars    = errors.New("invalid_stars")
	ErrInvalidImageURL = errors.New("invalid_image_url")
	ErrDuplicateReview = errors.New("duplicate_review")
	ErrReviewNotFound  = errors.New("review_not_found")
)
