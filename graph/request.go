package graph

import "fmt"

// Quality is a fidelity tier selecting the output resolution policy.
type Quality uint8

const (
	// QualityDraft renders at a fixed working width regardless of the
	// project's aspect ratio. Fast preview.
	QualityDraft Quality = iota

	// QualityHigh renders at 1080 lines, 16:9.
	QualityHigh

	// QualityMaster renders at 2160 lines, 16:9.
	QualityMaster
)

// String returns a human-readable name for the tier.
func (q Quality) String() string {
	switch q {
	case QualityDraft:
		return "Draft"
	case QualityHigh:
		return "High"
	case QualityMaster:
		return "Master"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(q))
	}
}

// Tier heights for the 16:9 policies.
const (
	draftWidth   = 960
	draftHeight  = 540
	highHeight   = 1080
	masterHeight = 2160
)

// Resolution returns the working resolution for the tier.
//
// Draft uses a fixed width independent of aspect ratio; High and
// Master derive width from the tier height and a 16:9 aspect ratio.
func (q Quality) Resolution() (width, height int) {
	switch q {
	case QualityHigh:
		return highHeight * 16 / 9, highHeight
	case QualityMaster:
		return masterHeight * 16 / 9, masterHeight
	default:
		return draftWidth, draftHeight
	}
}

// Request bundles everything the engine needs to render one frame. A
// request is created once per frame by the compiler (or a test
// harness), consumed once by the engine, then discarded.
type Request struct {
	// Graph is the compiled render graph.
	Graph *Graph

	// Time is the timeline time the graph was compiled at, in seconds.
	Time float64

	// Quality selects the working resolution.
	Quality Quality

	// Assets resolves logical asset ids to concrete paths or URLs.
	Assets map[string]string
}

// ResolveAsset maps a logical asset id to its concrete location.
// Returns false when the request carries no mapping for the id.
func (r *Request) ResolveAsset(id string) (string, bool) {
	loc, ok := r.Assets[id]
	return loc, ok
}
