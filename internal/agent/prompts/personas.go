package prompts

import (
	"fmt"
	"strings"
)

// Agent names.
const (
	AgentAnalyst = "financial_analyst"
	AgentWriter  = "report_writer"
)

// Persona is the role an agent plays in the system prompt.
type Persona struct {
	Name      string
	Role      string
	Goal      string
	Backstory string
}

// Analyst is the stage-1 persona. The goal is rendered per symbol.
func Analyst(symbol string) Persona {
	return Persona{
		Name:      AgentAnalyst,
		Role:      "Wall Street Financial Analyst",
		Goal:      fmt.Sprintf("Analyze %s stock using real-time data", symbol),
		Backstory: "Seasoned analyst focused on data-driven insights, with more than fifteen years in equity research and portfolio management.",
	}
}

// Writer is the stage-2 persona.
func Writer() Persona {
	return Persona{
		Name:      AgentWriter,
		Role:      "Financial Report Specialist",
		Goal:      "Create a professional investment report",
		Backstory: "Financial writer who turns analyst notes into institutional-grade reports, fluent in both technical and fundamental analysis.",
	}
}

// SystemPrompt renders the persona as a system message.
func (p Persona) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a **%s**.\n\n", p.Role)
	fmt.Fprintf(&b, "## Goal\n%s\n\n", p.Goal)
	fmt.Fprintf(&b, "## Background\n%s\n\n", p.Backstory)
	b.WriteString(`## Guidelines
1. Use your tools to fetch real numbers before making any claim about them
2. Never estimate or fabricate market data; write "N/A" when a value is missing
3. Keep the requested section order and headings exactly
4. Prefer concrete figures over adjectives
5. Finish with a clear, actionable conclusion`)
	return b.String()
}
