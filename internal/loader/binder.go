package loader

import (
	"github.com/samcharles93/ferry/internal/model"
	"github.com/samcharles93/ferry/internal/weights"
)

// bind installs w onto g, requiring every slot to be covered, then forces
// every parameter so deferred failures surface here.
func bind(g *model.Graph, w weights.Map) error {
	if err := g.Update(model.Unflatten(w), model.VerifyAll); err != nil {
		return err
	}
	return g.EvalAll()
}
