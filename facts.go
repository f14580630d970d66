package srcfacts

// Facts is the flat record of measures accumulated over one document.
// Every field is monotonically non-decreasing during a scan except
// URL, which is overwritten: the last url attribute seen anywhere in
// the document wins.
type Facts struct {
	URL           string // document identifier, from the url attribute
	TotalBytes    int64  // bytes read from the input
	TextSize      int    // character data volume, entities decoded
	LOC           int    // newline count in text runs and CDATA bodies
	ExprCount     int
	DeclCount     int
	CommentCount  int
	FunctionCount int
	UnitCount     int
	ClassCount    int
}

// Files derives the file count from the unit count. An archive wraps
// its N inner translation units in one outer wrapper unit, so one
// wrapper is subtracted and the result floored at 1 to cover
// single-file documents.
func (f *Facts) Files() int {
	files := f.UnitCount - 1
	if files < 1 {
		files = 1
	}
	return files
}
