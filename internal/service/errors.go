package service

import "errors"

var ErrBroadcastNotFound = errors.New("broadcast not found")
