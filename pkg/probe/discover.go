package probe

import (
	"context"
	"errors"
	"sort"

	"github.com/nine15pm/GrokEval/pkg/driver"
)

// Finding is the observed state of one identifier.
type Finding struct {
	Name       string            `json:"name"`
	Identifier driver.Identifier `json:"identifier"`
	Present    bool              `json:"present"`
	Text       string            `json:"text,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Discover queries every configured identifier once, to check which still
// resolve after the UI changes. Findings are sorted by name.
func (p *Probe) Discover(ctx context.Context) ([]Finding, error) {
	named := p.config.Identifiers.Named()
	findings := make([]Finding, 0, len(named))

	for name, id := range named {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := Finding{Name: name, Identifier: id}

		present, err := p.present(ctx, "probe.discover", id)
		if err != nil {
			f.Error = err.Error()
			findings = append(findings, f)
			continue
		}
		f.Present = present

		qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
		text, err := p.driver.QueryText(qctx, id)
		cancel()
		switch {
		case errors.Is(err, driver.ErrNotFound):
		case err != nil:
			f.Error = err.Error()
		default:
			f.Text = truncate(text, 200)
		}
		findings = append(findings, f)
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Name < findings[j].Name })
	return findings, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
