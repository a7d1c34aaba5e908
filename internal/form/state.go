// Package form owns the state of the low-poly upload form and performs its
// single network transaction.
package form

// Defaults and bounds of the numeric inputs.
const (
	DefaultNumPoints   = 5000
	DefaultDetailLevel = 5
	MinNumPoints       = 100
	MaxNumPoints       = 20000
	MinDetailLevel     = 1
	MaxDetailLevel     = 5
)

// User-visible messages.
const (
	MsgNoFile     = "请先选择图片"
	FailurePrefix = "处理失败："
)

// File is an image picked by the user.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// State is a snapshot of the form. Empty strings mean absent.
type State struct {
	SelectedFile        *File
	OriginalPreviewURL  string
	ProcessedPreviewURL string
	NumPoints           int
	DetailLevel         int
	IsLoading           bool
	ErrorMessage        string
}

func defaultState() State {
	return State{NumPoints: DefaultNumPoints, DetailLevel: DefaultDetailLevel}
}

// ClampParams bounds the numeric inputs before they are sent.
func ClampParams(numPoints, detailLevel int) (int, int) {
	return clamp(numPoints, MinNumPoints, MaxNumPoints), clamp(detailLevel, MinDetailLevel, MaxDetailLevel)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
