package session

import "errors"

var (
	// ErrEmptyClueMessage is returned by PostClue for blank messages. Nothing is changed.
	ErrEmptyClueMessage = errors.New("clue message is empty")
)
