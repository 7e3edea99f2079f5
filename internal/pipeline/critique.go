package pipeline

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/atlast/internal/progress"
	"github.com/mohammad-safakhou/atlast/provider"
)

type provenance struct {
	critic   string
	accepted bool
	feedback string
}

// critique is fail-open: no critics, or every critic in the chain failing or
// answering with a malformed verdict, accepts the draft. Only an explicit FAIL
// marks it as not accepted.
func (p *Pipeline) critique(ctx context.Context, r *run, d draft) provenance {
	if len(p.deps.Critics) == 0 {
		p.publish(ctx, r.req.SessionID, progress.StageCritiqueResult, "approved, critic skipped")
		return provenance{critic: CriticSkipped, accepted: true}
	}
	strategies := make([]strategy[provider.Verdict], 0, len(p.deps.Critics))
	for _, c := range p.deps.Critics {
		c := c
		strategies = append(strategies, strategy[provider.Verdict]{
			name: c.Name(),
			run: func(ctx context.Context) (provider.Verdict, error) {
				cctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
				defer cancel()
				v, err := c.Critique(cctx, r.target.Name, d.text)
				if err != nil {
					p.logger.Printf("session %s: critic %s errored: %v", r.req.SessionID, c.Name(), err)
				}
				return v, err
			},
		})
	}

	v, name, err := firstSuccess(ctx, strategies)
	if err != nil {
		p.logger.Printf("session %s: no critic answered, accepting draft", r.req.SessionID)
		p.publish(ctx, r.req.SessionID, progress.StageCritiqueResult, "approved, critic errored")
		return provenance{critic: CriticErrored, accepted: true}
	}
	if v.Pass {
		p.publish(ctx, r.req.SessionID, progress.StageCritiqueResult, "approved by "+name)
		return provenance{critic: name, accepted: true}
	}
	p.logger.Printf("session %s: critic %s rejected draft for %s: %s", r.req.SessionID, name, r.target.Name, v.Feedback)
	p.publish(ctx, r.req.SessionID, progress.StageCritiqueResult, fmt.Sprintf("rejected by %s", name))
	feedback := v.Feedback
	if feedback == "" {
		feedback = "The riddle was rejected. Make it more specific and accurate."
	}
	return provenance{critic: name, accepted: false, feedback: feedback}
}
