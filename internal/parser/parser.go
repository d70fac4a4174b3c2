// Package parser normalizes raw PostgreSQL EXPLAIN output, in text or JSON
// form, into model.PlanNode trees. Parsing is a best-effort adapter: operation
// wording the vocabulary does not recognize is carried through verbatim rather
// than rejected, because planner output format is not a stable contract across
// engine versions.
package parser

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/model"
)

// ErrParse marks input that holds no recognizable plan shape at all, or plan
// numbers that violate basic cost invariants.
var ErrParse = errors.New("unrecognized plan output")

// Parse sniffs the payload format and dispatches to ParseJSON or ParseText.
func Parse(data []byte) (*model.PlanNode, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.Wrap(ErrParse, "parser: empty input")
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return ParseJSON(bytes.NewReader(data))
	}
	return ParseText(strings.NewReader(string(data)))
}

func validated(root *model.PlanNode) (*model.PlanNode, error) {
	if err := root.Validate(); err != nil {
		return nil, errors.Mark(err, ErrParse)
	}
	return root, nil
}
