package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrMalformedRoomKey   = fmt.Errorf("room key must contain exactly two identities")
	ErrInvalidFrame       = fmt.Errorf("invalid message format")
	ErrInvalidJSON        = fmt.Errorf("invalid JSON format")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrEmptyWordlist      = fmt.Errorf("no censored words have been found")
	ErrNotAnImage         = fmt.Errorf("uploaded content is not an image")
	ErrSinkClosed         = fmt.Errorf("sink is closed")
	ErrSinkFull           = fmt.Errorf("sink buffer is full")
)
