// Package engine builds the reasoning engines an analysis runs on. An engine
// is bound to the dataframe and the semantic memory of one (client,
// platform) pair and answers free-form questions about it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
	"github.com/easeaico/marketing-analyst/internal/tools"
)

// ErrIterationLimit is returned when an engine exhausts its step budget
// without producing a final answer.
var ErrIterationLimit = errors.New("engine stopped after reaching the iteration limit")

// previewRows is how many rows of the frame go into the instruction.
const previewRows = 5

// Engine answers one input at a time. Implementations are safe for
// concurrent use.
type Engine interface {
	Invoke(ctx context.Context, input string) (string, error)
}

// Spec is everything an engine is bound to.
type Spec struct {
	ClientID    string
	Platform    platform.Platform
	Instruction string
	Frame       *dataframe.Frame
	Recaller    tools.Recaller
}

// Builder creates engines. Build must not fetch data; everything it needs is
// carried by Spec.
type Builder interface {
	Build(ctx context.Context, spec Spec) (Engine, error)
}

// Limits bound a single Invoke.
type Limits struct {
	MaxIterations    int
	MaxExecutionTime time.Duration
}

// DefaultLimits are used for zero fields.
var DefaultLimits = Limits{MaxIterations: 8, MaxExecutionTime: 60 * time.Second}

func (l Limits) withDefaults() Limits {
	if l.MaxIterations <= 0 {
		l.MaxIterations = DefaultLimits.MaxIterations
	}
	if l.MaxExecutionTime <= 0 {
		l.MaxExecutionTime = DefaultLimits.MaxExecutionTime
	}
	return l
}

// SystemPrompt renders the instruction followed by a preview of the frame
// the engine is bound to.
func SystemPrompt(spec Spec) string {
	if spec.Frame == nil {
		return spec.Instruction
	}
	return fmt.Sprintf("%s\n\nCliente: %s\nO conjunto de dados tem %d linhas e as colunas: %s.\n\nPrévia dos dados (CSV):\n%s",
		spec.Instruction, spec.ClientID, spec.Frame.RowCount(), strings.Join(spec.Frame.AllColumns(), ", "), spec.Frame.Preview(previewRows))
}
