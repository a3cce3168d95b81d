// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Instruments bundles the engine's counters. Instances come from New and are
// handed to the services that record them.
type Instruments struct {
	ListCacheHits     metric.Int64Counter
	ListCacheMisses   metric.Int64Counter
	MembershipQueries metric.Int64Counter
}

// New creates the engine instruments on the global meter provider. With
// metrics disabled the global provider is a no-op and the instruments record
// nothing.
func New(ctx context.Context, cfg Config, serviceName string) (*Instruments, error) {
	name := serviceName
	if !cfg.Enabled {
		name = "noop"
	}
	meter := otel.Meter(name)

	var (
		ins Instruments
		err error
	)
	if ins.ListCacheHits, err = counter(meter, "rolegraph_list_cache_hits", "Role listings served from the cache"); err != nil {
		return nil, err
	}
	if ins.ListCacheMisses, err = counter(meter, "rolegraph_list_cache_misses", "Role listings computed from the store"); err != nil {
		return nil, err
	}
	if ins.MembershipQueries, err = counter(meter, "rolegraph_membership_queries", "Effective membership resolutions"); err != nil {
		return nil, err
	}
	return &ins, nil
}

func counter(meter metric.Meter, name, description string) (metric.Int64Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return c, nil
}
