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

// Package pointsto tracks what each entity may point to: a set of allocation sites, a null state,
// and the set of entities proven to alias it. It is the foundation the other analyses key field
// entities on, and the analysis behind null-dereference style rules.
package pointsto

import (
	"github.com/mavasani/roslyn-analyzers/analysis/cfg"
	"github.com/mavasani/roslyn-analyzers/analysis/config"
	"github.com/mavasani/roslyn-analyzers/analysis/dataflow"
	"github.com/mavasani/roslyn-analyzers/internal/pool"
)

// entityScratch holds the per-merge entity snapshots drawn during back-edge widening.
var entityScratch = pool.NewSlicePool[*dataflow.AnalysisEntity]()

// Data is the points-to state flowing through a procedure: the entity map plus any live predicate
// overlays.
type Data = dataflow.PredicatedData[*dataflow.PointsToValue]

// Domain is the analysis domain of points-to data.
type Domain struct {
	values dataflow.PointsToDomain
}

var _ dataflow.AnalysisDomain[*Data] = Domain{}

// NewDomain returns a domain bounding location sets at maxLocations.
func NewDomain(maxLocations int) Domain {
	return Domain{values: dataflow.PointsToDomain{MaxLocations: maxLocations}}
}

func (m Domain) Bottom() *Data {
	return dataflow.NewPredicatedData(dataflow.NewAnalysisData[*dataflow.PointsToValue]())
}

func (m Domain) Clone(d *Data) *Data { return d.Clone() }

func (m Domain) Merge(a, b *Data) *Data {
	out := a.Clone()
	out.MergeWith(b, m.values)
	return out
}

// MergeOnBackEdge merges and then widens: every entity whose value still changes across the back
// edge is reset to unknown, together with its copy partners on both sides, and the reset entities
// are scrubbed from every remaining copy set. Loop iterations can otherwise grow location sets and
// copy relations without bound.
func (m Domain) MergeOnBackEdge(old, incoming *Data) *Data {
	merged := m.Merge(old, incoming)
	buf := entityScratch.Acquire()
	defer entityScratch.Release(buf)
	*buf = merged.Core.AppendEntities(*buf)
	widen := map[*dataflow.AnalysisEntity]bool{}
	for _, e := range *buf {
		mv, _ := merged.Core.Get(e)
		ov, ok := old.Core.Get(e)
		if !ok {
			ov = m.values.Bottom()
		}
		if m.values.Compare(ov, mv) == 0 {
			continue
		}
		widen[e] = true
		for _, c := range mv.CopyEntities().Slice() {
			widen[c] = true
		}
		if iv, ok := incoming.Core.Get(e); ok {
			for _, c := range iv.CopyEntities().Slice() {
				widen[c] = true
			}
		}
	}
	if len(widen) == 0 {
		return merged
	}
	for e := range widen {
		merged.Core.Set(e, dataflow.UnknownPointsTo)
	}
	// Widening rebinds existing entities only, so the snapshot is still current.
	for _, e := range *buf {
		if widen[e] {
			continue
		}
		v, _ := merged.Core.Get(e)
		copies := v.CopyEntities()
		for w := range widen {
			copies = copies.Without(w)
		}
		merged.Core.Set(e, v.WithCopyEntities(copies))
	}
	return merged
}

func (m Domain) Compare(old, new *Data) int {
	return old.CompareWith(new, m.values)
}

// A Result bundles the solved per-block data with the run's side products.
type Result struct {
	*dataflow.Result[*Data]

	// Predicates classifies every branch condition the run flowed.
	Predicates *dataflow.PredicateRecorder

	// Entities is the factory the run interned its entities through; rules resolve symbols to
	// entities through it to index the block data.
	Entities *dataflow.EntityFactory
}

var resultCache = dataflow.NewResultCache[*Result]()

// GetOrComputeResult runs the points-to analysis over g, caching per graph and configuration.
func GetOrComputeResult(g *cfg.Graph, cfg *config.Config, logger *config.LogGroup) (*Result, error) {
	key := dataflow.CacheKey(g, "pointsto", cfg.Fingerprint())
	return resultCache.GetOrCompute(key, func() (*Result, error) {
		return compute(g, cfg, logger)
	})
}

func compute(g *cfg.Graph, cfg *config.Config, logger *config.LogGroup) (*Result, error) {
	return Analyze(g, cfg, logger, NewVisitor(cfg, logger))
}

// Analyze runs the points-to analysis over g with a caller-supplied visitor. Unlike
// GetOrComputeResult it never caches: a visitor carrying callee summaries would poison the
// cache for runs that registered different summaries under the same configuration.
func Analyze(g *cfg.Graph, cfg *config.Config, logger *config.LogGroup, v *Visitor) (*Result, error) {
	res, err := dataflow.Run[*Data](g, NewDomain(cfg.MaxAbstractLocations), v, dataflow.RunOptions{
		Logger:               logger,
		WideningThreshold:    cfg.WideningThreshold,
		MaxBlockVisitsFactor: cfg.MaxBlockVisitsFactor,
		DebugAssertions:      cfg.DebugAssertions,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Result: res, Predicates: v.Predicates, Entities: v.Entities}, nil
}
