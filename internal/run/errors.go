package run

import "errors"

var (
	ErrBusy            = errors.New("server busy")
	ErrRunNotFound     = errors.New("run not found")
	ErrRunNotFinished  = errors.New("run not finished")
	ErrArchiveNotFound = errors.New("archive not found")
)
