// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataflow

// A BlockResult is the stabilized input and output data of one block.
type BlockResult[D any] struct {
	Input  D
	Output D

	// Visits is how many times the fixed-point loop processed the block.
	Visits int
}

// A Result is the outcome of one engine run, read-only once returned.
type Result[D any] struct {
	blocks []BlockResult[D]

	unhandledThrow    D
	hasUnhandledThrow bool

	totalVisits int
}

// Block returns the result of the block with the given ordinal.
func (r *Result[D]) Block(ordinal int) BlockResult[D] {
	return r.blocks[ordinal]
}

// NumBlocks returns the number of blocks in the analyzed graph.
func (r *Result[D]) NumBlocks() int { return len(r.blocks) }

// ExitData returns the data flowing out of the procedure on normal completion.
func (r *Result[D]) ExitData() D {
	return r.blocks[len(r.blocks)-1].Output
}

// UnhandledThrowData returns the data merged over every exception path that escapes the
// procedure, and whether any such path exists.
func (r *Result[D]) UnhandledThrowData() (D, bool) {
	return r.unhandledThrow, r.hasUnhandledThrow
}

// TotalVisits returns the number of block visits the run took to converge.
func (r *Result[D]) TotalVisits() int { return r.totalVisits }
