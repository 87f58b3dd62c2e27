package timeline

import (
	"math"
	"sort"
	"strings"
)

const noSpeaker = -1

type draft struct {
	segment      Segment
	speaker      int
	wordSpeakers []int
}

// Assemble builds the normalized, speaker-labelled segment sequence.
func Assemble(raw []RawSegment, words Words, speakers Speakers) []Segment {
	ordered := make([]RawSegment, len(raw))
	copy(ordered, raw)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var drafts []draft
	if list, ok := words.Get(); ok {
		drafts = groupWords(ordered, list)
	} else {
		drafts = make([]draft, 0, len(ordered))
		for _, seg := range ordered {
			drafts = append(drafts, draft{
				segment: Segment{Start: seg.Start, End: seg.End, Text: strings.TrimSpace(seg.Text)},
				speaker: noSpeaker,
			})
		}
	}

	spans, diarized := speakers.Get()
	if diarized && len(spans) > 0 {
		assignSpeakers(drafts, sortSpans(spans))
	}

	sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].segment.Start < drafts[j].segment.Start })
	segments := make([]Segment, len(drafts))
	for i := range drafts {
		segments[i] = drafts[i].segment
	}
	segments = Normalize(segments)

	if !diarized || len(spans) == 0 {
		for i := range segments {
			segments[i].Speaker = DefaultSpeaker
		}
		return segments
	}
	relabel(segments, drafts)
	return segments
}

// groupWords gives each raw segment the words whose midpoint falls inside it.
// A word is claimed by the first matching segment only.
func groupWords(raw []RawSegment, words []Word) []draft {
	sortedWords := make([]Word, len(words))
	copy(sortedWords, words)
	sort.SliceStable(sortedWords, func(i, j int) bool { return sortedWords[i].Start < sortedWords[j].Start })

	buckets := make([][]Word, len(raw))
	for _, word := range sortedWords {
		mid := (word.Start + word.End) / 2
		for i, seg := range raw {
			if mid >= seg.Start && mid <= seg.End {
				buckets[i] = append(buckets[i], word)
				break
			}
		}
	}

	drafts := make([]draft, 0, len(raw))
	for i, seg := range raw {
		d := draft{
			segment: Segment{Start: seg.Start, End: seg.End, Text: strings.TrimSpace(seg.Text)},
			speaker: noSpeaker,
		}
		if members := buckets[i]; len(members) > 0 {
			d.segment.Words = members
			d.segment.Start = members[0].Start
			end := members[0].End
			for _, w := range members[1:] {
				end = math.Max(end, w.End)
			}
			d.segment.End = end
		}
		drafts = append(drafts, d)
	}
	return drafts
}

func sortSpans(spans []SpeakerSpan) []SpeakerSpan {
	sorted := make([]SpeakerSpan, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return sorted
}

func assignSpeakers(drafts []draft, spans []SpeakerSpan) {
	for i := range drafts {
		d := &drafts[i]
		d.wordSpeakers = make([]int, len(d.segment.Words))
		for j, word := range d.segment.Words {
			d.wordSpeakers[j] = bestOverlap(spans, word.Start, word.End)
		}
		d.speaker = majority(d.wordSpeakers)
		if d.speaker == noSpeaker {
			d.speaker = bestOverlap(spans, d.segment.Start, d.segment.End)
		}
		if d.speaker == noSpeaker {
			d.speaker = nearest(spans, d.segment.Start, d.segment.End)
		}
	}
}

// bestOverlap returns the speaker of the span overlapping [start, end] the
// most. Spans are sorted by start, so the strict comparison keeps the earliest
// span on ties.
func bestOverlap(spans []SpeakerSpan, start, end float64) int {
	best := noSpeaker
	most := 0.0
	for _, span := range spans {
		overlap := math.Min(end, span.End) - math.Max(start, span.Start)
		if overlap > most {
			most = overlap
			best = span.Speaker
		}
	}
	return best
}

func nearest(spans []SpeakerSpan, start, end float64) int {
	best := noSpeaker
	bestDistance := math.Inf(1)
	for _, span := range spans {
		var distance float64
		switch {
		case span.End < start:
			distance = start - span.End
		case span.Start > end:
			distance = span.Start - end
		}
		if distance < bestDistance {
			bestDistance = distance
			best = span.Speaker
		}
	}
	return best
}

// majority picks the most frequent assigned speaker; ties go to the one that
// occurs first.
func majority(ids []int) int {
	counts := make(map[int]int, len(ids))
	for _, id := range ids {
		if id != noSpeaker {
			counts[id]++
		}
	}
	best, bestCount := noSpeaker, 0
	for _, id := range ids {
		if id == noSpeaker {
			continue
		}
		if counts[id] > bestCount {
			best, bestCount = id, counts[id]
		}
	}
	return best
}

// relabel maps diarization ids to spk1, spk2, ... by first appearance in the
// normalized order. drafts is in the same order as segments.
func relabel(segments []Segment, drafts []draft) {
	labels := make(map[int]string)
	labelFor := func(id int) string {
		if id == noSpeaker {
			return ""
		}
		if label, ok := labels[id]; ok {
			return label
		}
		label := Label(len(labels) + 1)
		labels[id] = label
		return label
	}

	for i := range segments {
		segments[i].Speaker = labelFor(drafts[i].speaker)
	}
	for i := range segments {
		if len(segments[i].Words) == 0 {
			continue
		}
		words := make([]Word, len(segments[i].Words))
		copy(words, segments[i].Words)
		for j := range words {
			words[j].Speaker = labelFor(drafts[i].wordSpeakers[j])
		}
		segments[i].Words = words
	}
}
