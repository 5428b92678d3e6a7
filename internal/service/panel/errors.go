package panel

import "errors"

var (
	ErrInvalidComposition  = errors.New("panel requires 2-4 distinct known personas")
	ErrSessionNotFound     = errors.New("panel session not found")
	ErrSessionNotActive    = errors.New("panel session has ended")
	ErrSessionBusy         = errors.New("panel session has a turn in progress")
	ErrEmptyUserMessage    = errors.New("user message cannot be empty")
	ErrInsufficientHistory = errors.New("no completed exchanges to summarize")
)
