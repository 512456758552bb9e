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

package pool

import "testing"

func TestSetPoolReturnsCleanSets(t *testing.T) {
	p := NewSetPool[int]()
	s := p.Acquire()
	s[1] = true
	s[2] = true
	p.Release(s)

	got := p.Acquire()
	if len(got) != 0 {
		t.Errorf("acquired set not empty: %v", got)
	}
	p.Release(got)
}

func TestSlicePoolReturnsEmptySlices(t *testing.T) {
	p := NewSlicePool[string]()
	s := p.Acquire()
	*s = append(*s, "a", "b")
	p.Release(s)

	got := p.Acquire()
	if len(*got) != 0 {
		t.Errorf("acquired slice not empty: %v", *got)
	}
	p.Release(got)
}

func TestPoolsSurviveNilRelease(t *testing.T) {
	sp := NewSetPool[int]()
	sp.Release(nil)
	if s := sp.Acquire(); s == nil {
		t.Error("Acquire after nil release returned nil")
	}
}
