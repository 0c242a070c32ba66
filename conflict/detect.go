// Package conflict classifies overlaps between externally synced calendar
// events and the organizer's manual blocks.
package conflict

import (
	"time"

	"synchub/availability"
	"synchub/integration"
)

// Overlap classifications.
const (
	CompleteOverlap  = "complete_overlap"
	ContainedOverlap = "contained_overlap"
	PartialOverlap   = "partial_overlap"
	NoOverlap        = "no_overlap"
)

// EventRef is the external-event half of an overlap record.
type EventRef struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// BlockRef is the manual-block half of an overlap record.
type BlockRef struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// Overlap pairs one external event with one intersecting manual block.
type Overlap struct {
	ExternalEvent EventRef `json:"external_event"`
	ManualBlock   BlockRef `json:"manual_block"`
	OverlapType   string   `json:"overlap_type"`
}

// Result separates hard conflicts (the event swallows the block) from softer
// overlaps, with totals for reporting.
type Result struct {
	Conflicts           []Overlap `json:"conflicts"`
	Overlaps            []Overlap `json:"overlaps"`
	TotalExternalEvents int       `json:"total_external_events"`
	TotalManualBlocks   int       `json:"total_manual_blocks"`
}

// Classify determines how interval 1 relates to interval 2. The NoOverlap
// branch is unreachable from Detect, which pre-filters intersecting pairs,
// but the classifier stays total.
func Classify(start1, end1, start2, end2 time.Time) string {
	switch {
	case !start1.After(start2) && !end1.Before(end2):
		return CompleteOverlap
	case !start2.After(start1) && !end2.Before(end1):
		return ContainedOverlap
	case start1.Before(end2) && end1.After(start2):
		return PartialOverlap
	default:
		return NoOverlap
	}
}

// Detect compares external events against manual blocks. Only blocks with
// source "manual" participate; synced blocks are never compared against each
// other here. An event that fully contains a block is a conflict, every other
// intersection is an overlap.
func Detect(events []integration.NormalizedEvent, blocks []availability.BlockedTime) Result {
	result := Result{
		Conflicts:           []Overlap{},
		Overlaps:            []Overlap{},
		TotalExternalEvents: len(events),
	}

	manual := make([]availability.BlockedTime, 0, len(blocks))
	for _, b := range blocks {
		if b.Source == availability.SourceManual {
			manual = append(manual, b)
		}
	}
	result.TotalManualBlocks = len(manual)

	for _, ev := range events {
		for _, block := range manual {
			if !block.StartDateTime.Before(ev.EndDateTime) || !block.EndDateTime.After(ev.StartDateTime) {
				continue
			}
			overlap := Overlap{
				ExternalEvent: EventRef{
					ID:      ev.ExternalID,
					Summary: ev.Summary,
					Start:   ev.StartDateTime.Format(time.RFC3339),
					End:     ev.EndDateTime.Format(time.RFC3339),
				},
				ManualBlock: BlockRef{
					ID:     block.ID,
					Reason: block.Reason,
					Start:  block.StartDateTime.Format(time.RFC3339),
					End:    block.EndDateTime.Format(time.RFC3339),
				},
				OverlapType: Classify(ev.StartDateTime, ev.EndDateTime, block.StartDateTime, block.EndDateTime),
			}
			if overlap.OverlapType == CompleteOverlap {
				result.Conflicts = append(result.Conflicts, overlap)
			} else {
				result.Overlaps = append(result.Overlaps, overlap)
			}
		}
	}
	return result
}
