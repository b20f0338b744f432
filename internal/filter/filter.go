// Package filter decides which decoded events reach the emitters.
package filter

import (
	"fmt"
	"regexp"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
)

// Filter defines the contract for event selection.
type Filter interface {
	// Keep reports whether the event should be emitted.
	Keep(event *model.LogEvent) bool

	// Name returns a unique identifier for this filter.
	Name() string
}

// Chain composes filters. An event is kept only if every filter keeps it;
// an empty chain keeps everything.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Keep applies all filters in order, stopping at the first rejection.
func (c *Chain) Keep(event *model.LogEvent) bool {
	for _, f := range c.filters {
		if !f.Keep(event) {
			return false
		}
	}
	return true
}

// Name returns the chain identifier.
func (c *Chain) Name() string {
	return "chain"
}

// Add appends a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.filters)
}

// LogGroupFilter selects events by log group name.
// Excludes win over includes; no includes means every group is included.
type LogGroupFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewLogGroupFilter compiles the include and exclude patterns.
func NewLogGroupFilter(include, exclude []string) (*LogGroupFilter, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude pattern: %w", err)
	}
	return &LogGroupFilter{include: inc, exclude: exc}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Name returns the filter identifier.
func (f *LogGroupFilter) Name() string {
	return "log_group"
}

// Keep reports whether the event's log group passes the patterns.
func (f *LogGroupFilter) Keep(event *model.LogEvent) bool {
	for _, re := range f.exclude {
		if re.MatchString(event.LogGroup) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(event.LogGroup) {
			return true
		}
	}
	return false
}

// FromConfig builds the chain described by cfg. An empty config yields
// an empty chain that keeps every event.
func FromConfig(cfg config.FilterConfig) (*Chain, error) {
	chain := NewChain()
	if len(cfg.IncludeLogGroups) == 0 && len(cfg.ExcludeLogGroups) == 0 {
		return chain, nil
	}

	lg, err := NewLogGroupFilter(cfg.IncludeLogGroups, cfg.ExcludeLogGroups)
	if err != nil {
		return nil, err
	}
	chain.Add(lg)
	return chain, nil
}
