// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"net/http"
)

// Error is a structured service error. The backend never lets table
// resolution or permission failures escape as panics or plain errors, they
// are returned as status plus message so a thin HTTP handler can forward
// them verbatim.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound reports an unresolvable table or a missing row
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// PermissionDenied reports missing table-level capability. Row-level denial
// is never an error, only a filtering outcome.
func PermissionDenied(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed request parameters
func Validation(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure reports an underlying storage error. The cause is logged by
// the caller, the client receives a generic failure.
func StorageFailure(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "storage failure"}
}
