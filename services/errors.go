package services

import (
	"errors"

	"pricepulse/repository"
)

var (
	ErrCouldNotRetrieveDetails = errors.New("could not retrieve product details")
	ErrProductNotFound         = repository.ErrProductNotFound
	ErrInvalidTargetPrice      = errors.New("target price must be a positive number")
	ErrAlertAlreadyExists      = errors.New("an identical active alert already exists")
	ErrProductNameUnknown      = errors.New("product name is not known yet")
)
