package enrollment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/subscriber"
)

// SubscriberDirectory is the read surface the selector needs from the
// subscriber store.
type SubscriberDirectory interface {
	LookupByEmails(ctx context.Context, emails []string) (*subscriber.LookupResult, error)
	Search(ctx context.Context, f subscriber.SearchFilter, limit int) ([]uuid.UUID, error)
}

// SegmentResolver is the read surface the selector needs from the
// segment store.
type SegmentResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*segment.Segment, error)
	ResolveStatic(ctx context.Context, segmentID uuid.UUID) ([]uuid.UUID, error)
	ResolveDynamic(ctx context.Context, q segment.Query) ([]uuid.UUID, error)
}

// Selector resolves an enrollment source into a de-duplicated set of
// subscriber IDs plus an audit description of the selection.
type Selector struct {
	subscribers SubscriberDirectory
	segments    SegmentResolver
	allCap      int
}

// DefaultAllCap bounds "all subscribers" selection the same way dynamic
// segments are bounded.
const DefaultAllCap = 10000

func NewSelector(subscribers SubscriberDirectory, segments SegmentResolver, allCap int) *Selector {
	if allCap <= 0 {
		allCap = DefaultAllCap
	}
	return &Selector{subscribers: subscribers, segments: segments, allCap: allCap}
}

// Select validates the source discriminator first, before any lookup work,
// so a malformed request fails fast without touching the store.
func (s *Selector) Select(ctx context.Context, req *EnrollRequest) ([]uuid.UUID, *SourceDetails, error) {
	switch req.Source {
	case SourceManual:
		return s.selectManual(ctx, req.Emails)
	case SourceSegment:
		if req.SegmentID == nil {
			return nil, nil, ErrSegmentRequired
		}
		return s.selectSegment(ctx, *req.SegmentID)
	case SourceAll:
		return s.selectAll(ctx, req.Filters)
	default:
		return nil, nil, ErrInvalidSource
	}
}

func (s *Selector) selectManual(ctx context.Context, emails []string) ([]uuid.UUID, *SourceDetails, error) {
	if len(emails) == 0 {
		return nil, nil, ErrEmailsRequired
	}

	result, err := s.subscribers.LookupByEmails(ctx, emails)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up emails: %w", err)
	}

	ids := dedupe(result.IDs)
	details := &SourceDetails{
		Type:        SourceManual,
		Description: fmt.Sprintf("%d emails provided, %d matched", len(emails), len(ids)),
		Requested:   len(emails),
		Matched:     len(ids),
		NotFound:    result.NotFound,
	}
	return ids, details, nil
}

func (s *Selector) selectSegment(ctx context.Context, segmentID uuid.UUID) ([]uuid.UUID, *SourceDetails, error) {
	seg, err := s.segments.Get(ctx, segmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading segment: %w", err)
	}
	if seg == nil {
		return nil, nil, ErrSegmentNotFound
	}

	var ids []uuid.UUID
	switch res := seg.Resolution.(type) {
	case segment.Dynamic:
		ids, err = s.segments.ResolveDynamic(ctx, res.Query)
	default:
		ids, err = s.segments.ResolveStatic(ctx, segmentID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolving segment %s: %w", segmentID, err)
	}

	ids = dedupe(ids)
	details := &SourceDetails{
		Type:        SourceSegment,
		Description: fmt.Sprintf("%s segment %q, %d subscribers", seg.Type(), seg.Name, len(ids)),
		SegmentID:   &seg.ID,
		SegmentName: seg.Name,
		Matched:     len(ids),
	}
	return ids, details, nil
}

func (s *Selector) selectAll(ctx context.Context, filters *subscriber.SearchFilter) ([]uuid.UUID, *SourceDetails, error) {
	var f subscriber.SearchFilter
	if filters != nil {
		f = *filters
	}

	ids, err := s.subscribers.Search(ctx, f, s.allCap)
	if err != nil {
		return nil, nil, fmt.Errorf("searching subscribers: %w", err)
	}

	ids = dedupe(ids)
	desc := fmt.Sprintf("all subscribers, %d matched", len(ids))
	if !f.IsZero() {
		desc = fmt.Sprintf("filtered subscribers, %d matched", len(ids))
	}
	details := &SourceDetails{
		Type:        SourceAll,
		Description: desc,
		Matched:     len(ids),
	}
	return ids, details, nil
}

// dedupe preserves first-occurrence order.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
