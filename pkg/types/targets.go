package types

import "fmt"

// InstanceTarget is the domain of one Mastodon server, optionally with a
// port (e.g. "mastodon.social" or "localhost:3000").
type InstanceTarget string

func (t InstanceTarget) String() string { return string(t) }

// AccountTarget identifies one profile on one instance.
type AccountTarget struct {
	Instance InstanceTarget
	ID       string
}

func (t AccountTarget) String() string {
	return fmt.Sprintf("%s@%s", t.ID, t.Instance)
}

// Targets is the complete set of things polled on every collection cycle.
type Targets struct {
	Instances []InstanceTarget
	Accounts  []AccountTarget
}

// Len returns the total number of fetches one cycle performs.
func (t Targets) Len() int {
	return len(t.Instances) + len(t.Accounts)
}
