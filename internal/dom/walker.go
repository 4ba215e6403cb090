package dom

import (
	"errors"
	"fmt"
)

// ErrCycle is reported when a document is reachable twice from the same walk.
var ErrCycle = errors.New("frame document already visited")

// Visit identifies a document reached by WalkFrames.
type Visit struct {
	Doc   *Document
	Path  string
	Depth int
}

// FrameSkip records a frame WalkFrames could not enter.
type FrameSkip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// WalkFrames calls visit for doc and then for every accessible frame document
// below it, parents before children. It uses an explicit worklist rather than
// recursion; each document is visited at most once and nesting stops at
// maxDepth. Inaccessible frames are returned as skips and never stop the walk.
func WalkFrames(doc *Document, maxDepth int, visit func(Visit)) []FrameSkip {
	if doc == nil {
		return nil
	}

	var skips []FrameSkip
	seen := map[*Document]bool{doc: true}
	queue := []Visit{{Doc: doc, Path: "top", Depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		visit(cur)

		for i, iframe := range cur.Doc.Iframes() {
			path := fmt.Sprintf("%s/frame[%d]", cur.Path, i)

			if cur.Depth+1 > maxDepth {
				skips = append(skips, FrameSkip{Path: path, Reason: ErrTooDeep.Error(), Err: ErrTooDeep})
				continue
			}

			child, err := cur.Doc.ContentDocument(iframe)
			if err != nil {
				skips = append(skips, FrameSkip{Path: path, Reason: err.Error(), Err: err})
				continue
			}
			if seen[child] {
				skips = append(skips, FrameSkip{Path: path, Reason: ErrCycle.Error(), Err: ErrCycle})
				continue
			}
			seen[child] = true
			queue = append(queue, Visit{Doc: child, Path: path, Depth: cur.Depth + 1})
		}
	}

	return skips
}
