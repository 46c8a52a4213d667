// Package analysis studies recorded trajectories.
//
//   - [NewPhasePortrait]: one series plotted against another
//   - [NewSection]: the points where a third series crosses a level
//
// A predator-prey run, for instance, traces a closed orbit in the
// rabbits-foxes plane:
//
//	p := analysis.NewPhasePortrait(data.Values["rabbits"], data.Values["foxes"])
//	fmt.Print(p.ToASCII(60, 20))
package analysis
