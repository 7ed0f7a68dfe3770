// Package xerr defines the broker's error taxonomy.
//
// Two disjoint error spaces flow through the broker: negative broker-domain
// codes (this package) and positive system errnos captured verbatim from
// failed OS calls. The broker never rewrites an errno into a broker code or
// vice versa, so a caller can always tell which space a job's result value
// came from by its sign.
package xerr

import "fmt"

// Code is a broker-domain error code. Values are negative so that a job's
// result column can hold either a Code or a positive syscall.Errno without
// collision (aside from 0, which always means success).
type Code int32

// base mirrors SNPY_EBASE from the original C implementation: an arbitrary
// non-zero offset that keeps broker codes well clear of the errno range.
const base Code = -0x1c61862a

const (
	EDBCONN     Code = base - 0  // database connection error
	EINVREC     Code = base - 1  // invalid record
	ENOPROC     Code = base - 2  // no processor found for arg0
	EBADJ       Code = base - 3  // bad job status / lost child
	EENVJ       Code = base - 4  // job environment (working directory) setup error
	ESPAWNJ     Code = base - 5  // error spawning a child job or plugin process
	ESTATJ      Code = base - 6  // invalid job state
	EPROC       Code = base - 7  // processor error
	ESUB        Code = base - 8  // sub job error
	ENEXT       Code = base - 9  // next job error
	EPLUG       Code = base - 10 // plugin returned a non-zero status
	EARG        Code = base - 11 // job argument error
	ECONF       Code = base - 12 // configuration error
	EINVPLUG    Code = base - 13 // invalid plugin parameter
	EAMBIPLUG   Code = base - 14 // ambiguous plugin choice
	ENOPLUG     Code = base - 15 // no plugin found for the job
	EINCOMPARG  Code = base - 16 // incomplete argument (missing sp_name/tp_name)
	ELOG        Code = base - 17 // log processing error (overflow)
	ERESPOOLFUL Code = base - 18 // resource pool full
	ENOIMPL     Code = base - 19 // not implemented
)

var messages = map[Code]string{
	EDBCONN:     "database connection error",
	EINVREC:     "invalid record",
	ENOPROC:     "no processor found",
	EBADJ:       "bad job status",
	EENVJ:       "job environment setup error",
	ESPAWNJ:     "error spawning job",
	ESTATJ:      "invalid job state",
	EPROC:       "processor error",
	ESUB:        "sub job error",
	ENEXT:       "next job error",
	EPLUG:       "plugin return error",
	EARG:        "job argument error",
	ECONF:       "configuration error",
	EINVPLUG:    "invalid plugin param",
	EAMBIPLUG:   "ambiguous plugin choice",
	ENOPLUG:     "no plugin found for the job",
	EINCOMPARG:  "incomplete argument",
	ELOG:        "log processing error",
	ERESPOOLFUL: "resource pool full",
	ENOIMPL:     "not implemented",
}

// Error implements the error interface so a Code can be returned directly
// from functions and compared with errors.Is against the exported sentinels.
func (c Code) Error() string {
	if msg, ok := messages[c]; ok {
		return fmt.Sprintf("xcore: %s", msg)
	}
	return fmt.Sprintf("xcore: unknown error code %d", int32(c))
}

// String renders the bare message, used in log fields and the transition
// record's errmsg value where the "xcore:" prefix would be redundant.
func (c Code) String() string {
	if msg, ok := messages[c]; ok {
		return msg
	}
	return "unknown error"
}

// IsBrokerCode reports whether v falls in the broker-domain range, as
// opposed to being a plain positive errno or zero (success).
func IsBrokerCode(v int32) bool {
	_, ok := messages[Code(v)]
	return ok
}
