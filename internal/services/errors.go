package services

import "errors"

var (
	ErrQuoteNotFound = errors.New("quote not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrQuoteExists   = errors.New("quote already exists")
)
