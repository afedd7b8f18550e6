package report

import "regexp"

// TargetKind tells how a load balancer target is addressed.
type TargetKind int

// Target kinds.
const (
	TargetAddress TargetKind = iota
	TargetInstance
)

var instanceIDPattern = regexp.MustCompile(`^i-[0-9a-f]{17}$`)

// ClassifyTarget reports whether a target ID names an EC2 instance.
// Only the 17 hex digit instance form qualifies; everything else, such as
// IP addresses, Lambda ARNs and legacy 8 digit IDs, is an address.
func ClassifyTarget(id string) TargetKind {
	if instanceIDPattern.MatchString(id) {
		return TargetInstance
	}
	return TargetAddress
}

func (k TargetKind) String() string {
	if k == TargetInstance {
		return "instance"
	}
	return "address"
}
