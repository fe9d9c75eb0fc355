package flowconfig

import "sort"

// AnalysisResult contains the results of flow graph analysis
type AnalysisResult struct {
	Flow               string          `json:"flow"`
	StartScreen        string          `json:"start_screen"`
	Edges              []Edge          `json:"edges"`
	UnreachableScreens []string        `json:"unreachable_screens"`
	TerminalScreens    []string        `json:"terminal_screens"`
	FallbackIssues     []FallbackIssue `json:"fallback_issues"`
	ValidationStatus   string          `json:"validation_status"`
}

// Edge is one declared transition between screens
type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// FallbackIssue reports a screen whose unconditional next entries are not
// exactly one. Such screens fail or behave surprisingly at navigation time.
type FallbackIssue struct {
	Screen        string `json:"screen"`
	Unconditional int    `json:"unconditional"`
	Issue         string `json:"issue"`
}

// Analyze inspects the flow graph without evaluating any conditions
func Analyze(flow *FlowConfig) *AnalysisResult {
	result := &AnalysisResult{
		Flow:               flow.Name,
		StartScreen:        flow.FirstScreen(),
		Edges:              []Edge{},
		UnreachableScreens: []string{},
		TerminalScreens:    []string{},
		FallbackIssues:     []FallbackIssue{},
		ValidationStatus:   "healthy",
	}

	adj := make(map[string][]string)
	for _, name := range flow.orderedScreens() {
		screen := flow.Screens[name]
		if len(screen.NextScreens) == 0 {
			result.TerminalScreens = append(result.TerminalScreens, name)
			continue
		}

		unconditional := 0
		for _, next := range screen.NextScreens {
			result.Edges = append(result.Edges, Edge{From: name, To: next.Name, Condition: next.Condition})
			adj[name] = append(adj[name], next.Name)
			if !next.IsConditional() {
				unconditional++
			}
		}

		switch {
		case unconditional == 0:
			result.FallbackIssues = append(result.FallbackIssues, FallbackIssue{
				Screen: name, Unconditional: 0, Issue: "no_fallback",
			})
		case unconditional > 1:
			result.FallbackIssues = append(result.FallbackIssues, FallbackIssue{
				Screen: name, Unconditional: unconditional, Issue: "ambiguous_fallback",
			})
		}
	}

	// Subflow screens are reachable through iteration and delete endpoints
	roots := []string{result.StartScreen}
	for _, name := range sortedKeys(flow.Subflows) {
		sf := flow.Subflows[name]
		roots = append(roots, sf.IterationStartScreen, sf.ReviewScreen, sf.DeleteConfirmationScreen)
	}

	visited := make(map[string]bool)
	for _, root := range roots {
		if root != "" && !visited[root] {
			dfs(root, adj, visited)
		}
	}

	for _, name := range flow.orderedScreens() {
		if !visited[name] {
			result.UnreachableScreens = append(result.UnreachableScreens, name)
		}
	}
	sort.Strings(result.UnreachableScreens)

	if len(result.UnreachableScreens) > 0 || len(result.FallbackIssues) > 0 {
		result.ValidationStatus = "warnings"
	}

	return result
}

func dfs(node string, adj map[string][]string, visited map[string]bool) {
	visited[node] = true
	for _, neighbor := range adj[node] {
		if !visited[neighbor] {
			dfs(neighbor, adj, visited)
		}
	}
}
