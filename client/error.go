package client

import (
	"github.com/adamwoolhether/fetch/client/reqopt"
	"github.com/adamwoolhether/fetch/client/result"
)

// Configuration errors, returned before any I/O.
var (
	ErrUnknownBodyType = reqopt.ErrUnknownBodyType
	ErrUnknownOption   = reqopt.ErrUnknownOption
	ErrInvalidValue    = reqopt.ErrInvalidValue
)

type (
	InvalidOptionError = reqopt.InvalidOptionError
	TransportError     = result.TransportError
	BatchError         = result.BatchError
)
