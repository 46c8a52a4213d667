// Package viz renders simulation output for the terminal.
//
//   - [Plot]: line charts of one or more series (asciigraph)
//   - [ResultsTable], [RunsTable]: lipgloss tables of sampled values and stored runs
//   - [AgentMap]: agent positions and links drawn on a Braille [Canvas]
//
// Colors come from the current [Theme]; see [SetTheme].
package viz
