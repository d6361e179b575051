// Package vnerr holds the error kinds shared by the session packages.
//
// Callers classify failures with errors.Is. Device-side rejections and
// register codec failures are typed errors in their own packages
// (command.DeviceError, register.EncodingError, register.DecodingError).
package vnerr

import "errors"

var (
	// ErrTransportUnavailable means the port could not be opened.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrNoResponsiveBaud means autobaud tried every rate without a reply.
	ErrNoResponsiveBaud = errors.New("no responsive baud rate")
	// ErrCommandTimeout means every attempt of a command timed out.
	ErrCommandTimeout = errors.New("command timeout")
	// ErrDisconnected is returned to anything waiting when the connection closes.
	ErrDisconnected = errors.New("disconnected")
	// ErrDeviceRejected is wrapped by command.DeviceError.
	ErrDeviceRejected = errors.New("device rejected command")
)
