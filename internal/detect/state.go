// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

// State is a Loop's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateFiltering
	StateAnalyzing
	StateThresholding
	StateMerging
	StateNotifying
	StateAdvancing
	StateStopped
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateScanning:     "scanning",
	StateFiltering:    "filtering",
	StateAnalyzing:    "analyzing",
	StateThresholding: "thresholding",
	StateMerging:      "merging",
	StateNotifying:    "notifying",
	StateAdvancing:    "advancing",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
