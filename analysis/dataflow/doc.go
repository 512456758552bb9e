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

// Package dataflow implements the generic fixed-point dataflow framework the concrete analyses are
// built on: the abstract-domain contracts, the entity and abstract-location model, the
// branch-predicated data overlay, the worklist solver over control-flow graphs, and the per-run
// result caching.
//
// An analysis supplies two things: an AnalysisDomain describing how whole data snapshots clone,
// merge, widen and compare, and a Visitor implementing the transfer function of each operation.
// Run drives the worklist until every block's output stabilizes, handling try/catch/finally
// regions and loop back edges, and returns the per-block input/output snapshots.
//
// Soundness rests on two properties the framework checks but cannot enforce: every visitor must be
// monotone (flowing a larger input never produces a smaller output), and every domain merge must
// be a least upper bound. With debug assertions enabled violations are reported; otherwise a
// non-monotone update is ignored so the solver still terminates.
package dataflow
