package scanner

// Phase labels reported before each collection step.
const (
	PhaseUnzip   = "Unzipping file"
	PhaseSearch  = "Directory search"
	PhaseCollect = "Collecting files info"
)

// Progress receives collection updates. Percent values are in [0,100] and
// never decrease within a phase. All calls come from the collecting goroutine.
type Progress interface {
	Phase(label string)
	Percent(p int)
	Indeterminate()
}

type nopProgress struct{}

func (nopProgress) Phase(string)   {}
func (nopProgress) Percent(int)    {}
func (nopProgress) Indeterminate() {}

// NopProgress discards every update.
var NopProgress Progress = nopProgress{}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return 100 * done / total
}
