// Package filtergraph builds ffmpeg filter graphs as structured data.
//
// A [Graph] is a list of [Chain] values; each chain has labelled input pads,
// a comma-joined list of [Filter] values and labelled output pads. Nothing is
// turned into text until [Graph.String] is called at the command-line
// boundary, which applies the two escaping levels the ffmpeg grammar needs
// (option values, then the graph itself).
//
//	g := &filtergraph.Graph{}
//	g.Add([]string{"0:a"}, []filtergraph.Filter{filtergraph.F("volume", filtergraph.Pos(0.8))}, "aout")
//	g.String() // [0:a]volume=0.8[aout]
//
// [Graph.Validate] enforces that every pad label is consumed at most once.
package filtergraph
