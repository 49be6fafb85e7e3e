package model

// Rank describes one level of the fixed EMS rank table.
type Rank struct {
	Level      int    `json:"level"`
	Name       string `json:"name"`
	Salary     int64  `json:"salary"`
	CallReward int64  `json:"call_reward"`
}

// SupervisorRank is the minimum rank for supervisor actions
// (promoting, demoting, cancelling other callers' calls).
const SupervisorRank = 4

// Ranks is the fixed rank table. Every player rank must be a key of this map.
var Ranks = map[int]Rank{
	1: {Level: 1, Name: "Probationary EMT", Salary: 250, CallReward: 100},
	2: {Level: 2, Name: "EMT", Salary: 400, CallReward: 150},
	3: {Level: 3, Name: "Paramedic", Salary: 600, CallReward: 225},
	4: {Level: 4, Name: "Supervisor", Salary: 850, CallReward: 300},
	5: {Level: 5, Name: "Chief", Salary: 1200, CallReward: 400},
}

// ValidRank reports whether level is a key of the rank table.
func ValidRank(level int) bool {
	_, ok := Ranks[level]
	return ok
}

// IsSupervisor reports whether the given rank level may perform
// supervisor actions.
func IsSupervisor(level int) bool {
	return level >= SupervisorRank
}
