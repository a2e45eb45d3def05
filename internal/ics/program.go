package ics

import (
	"context"
	"fmt"
	"time"

	appLog "festsched/internal/log"
	"festsched/internal/model"
)

// ImportProgram fetches, parses and expands the program at location and
// returns add requests for every occurrence inside w.
func ImportProgram(ctx context.Context, f *Fetcher, location string, w Window, zone *time.Location) ([]model.Candidate, error) {
	res, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(res.Body, zone)
	if err != nil {
		return nil, fmt.Errorf("ics: parse program: %w", err)
	}

	occs, err := ExpandOccurrences(parsed, w)
	if err != nil {
		return nil, err
	}

	appLog.Debug("program expanded",
		"entries", len(parsed),
		"occurrences", len(occs),
		"from_cache", res.FromCache,
	)
	return Candidates(occs, zone), nil
}
