package export

// Dataset defines ordered tabular export content.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// Grid is an ordered sequence of seat labels for one hall, rendered
// into a fixed-width grid by the spreadsheet exporter.
type Grid struct {
	Hall  string
	Cells []string
}
