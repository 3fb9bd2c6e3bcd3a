// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zerr defines the stable error taxonomy shared by every codec and
// archive component in this module, following the teacher's sentinel-error
// style (internal/zip/zip.go's ErrFormat/ErrAlgorithm/ErrChecksum) rather
// than ad-hoc string errors.
package zerr

import "fmt"

// Code is a stable, numbered error kind. Numbers are part of the public
// contract: callers may switch on them.
type Code int

const (
	_ Code = iota
	UnexpectedEOF
	InvalidBlockType
	InvalidLengthLiteral
	InvalidDistance
	InvalidHeader
	ExtraFieldTooLong
	InvalidDate
	FilenameTooLong
	InvalidZipData
	UnknownCompressionMethod
)

var names = map[Code]string{
	UnexpectedEOF:            "unexpected EOF",
	InvalidBlockType:         "invalid DEFLATE block type",
	InvalidLengthLiteral:     "invalid length/literal code",
	InvalidDistance:          "invalid distance code",
	InvalidHeader:            "invalid zlib/gzip header",
	ExtraFieldTooLong:        "extra field too long",
	InvalidDate:              "invalid mtime date",
	FilenameTooLong:          "filename too long",
	InvalidZipData:           "invalid zip data",
	UnknownCompressionMethod: "unknown compression method",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("zerr.Code(%d)", int(c))
}

// Error carries a stable Code plus whatever context is relevant: the
// affected archive entry name, an mtime, or a wrapped cause.
type Error struct {
	Code   Code
	Name   string // affected file name, if any
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Name != "" {
		s += fmt.Sprintf(" (%q)", e.Name)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err (or something it wraps) carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ze, ok := err.(*Error); ok {
			e = ze
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == code
}

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	for err != nil {
		if ze, ok := err.(*Error); ok {
			return ze, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func Named(code Code, name, detail string) *Error {
	return &Error{Code: code, Name: name, Detail: detail}
}

func Wrap(code Code, detail string, cause error) *Error {
	return &Error{Code: code, Detail: detail, Cause: cause}
}
