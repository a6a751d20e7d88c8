package recognition

import "time"

// Result is a single recognized utterance as reported by a backend. Offsets
// and durations are in ticks of 100ns, measured from the start of the
// session.
type Result struct {
	ID                string  `json:"Id"`
	RecognitionStatus string  `json:"RecognitionStatus"`
	Offset            int64   `json:"Offset"`
	Duration          int64   `json:"Duration"`
	DisplayText       string  `json:"DisplayText"`
	NBest             []NBest `json:"NBest"`
	// Language is the detected language, empty when the backend was not
	// asked to detect one
	Language string `json:"Language,omitempty"`
}

type NBest struct {
	Confidence float64 `json:"Confidence"`
	Lexical    string  `json:"Lexical"`
	ITN        string  `json:"ITN"`
	MaskedITN  string  `json:"MaskedITN"`
	Display    string  `json:"Display"`
	Words      []Word  `json:"Words"`
}

type Word struct {
	Word       string  `json:"Word"`
	Offset     int64   `json:"Offset"`
	Duration   int64   `json:"Duration"`
	Confidence float64 `json:"Confidence"`
}

const tick = 100 * time.Nanosecond

// Ticks converts a duration into result ticks.
func Ticks(d time.Duration) int64 {
	return int64(d / tick)
}

func fromTicks(ticks int64) time.Duration {
	return time.Duration(ticks) * tick
}

func (r Result) best() (NBest, bool) {
	if len(r.NBest) == 0 {
		return NBest{}, false
	}
	return r.NBest[0], true
}
