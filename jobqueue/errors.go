// Copyright © 2016 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

package jobqueue

import "fmt"

// Error records an error and the operation and job that caused it,
// distinguishing client mistakes, resource exhaustion, and internal bugs.
type Error struct {
	Op    string // name of the command handler, e.g. "put", "reserve"
	JobID uint64
	Err   string
}

func (e Error) Error() string {
	if e.JobID != 0 {
		return fmt.Sprintf("jobqueue %s(job %d): %s", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("jobqueue %s: %s", e.Op, e.Err)
}

// clientErrorCode and serverErrorCode are the numeric codes the wire
// protocol reports alongside CLIENT_ERROR/SERVER_ERROR.
type clientErrorCode int

const (
	clientErrBadFormat clientErrorCode = iota
	clientErrUnknownCommand
	clientErrExpectedCRLF
	clientErrJobTooBig
)

var clientErrorMsg = map[clientErrorCode]string{
	clientErrBadFormat:      "bad command line format",
	clientErrUnknownCommand: "unknown command",
	clientErrExpectedCRLF:   "expected CR-LF after job body",
	clientErrJobTooBig:      "job too big",
}

type serverErrorCode int

const (
	serverErrOutOfMemory serverErrorCode = iota
	serverErrInternal
	serverErrDraining
)

var serverErrorMsg = map[serverErrorCode]string{
	serverErrOutOfMemory: "out of memory",
	serverErrInternal:    "internal error",
	serverErrDraining:    "draining",
}
