package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = LSCoreSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// LSCoreSemVer is the current version of the ledger sync node.
	// It's the Semantic Version of the software.
	LSCoreSemVer = "0.3.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// P2PProtocol versions the ledger sync messages exchanged by peers.
	P2PProtocol Protocol = 2

	// LedgerProtocol versions proofs, headers and the accumulator. Nodes on
	// different ledger protocols cannot verify each other's batches.
	LedgerProtocol Protocol = 1
)

// Info describes the running software.
type Info struct {
	Version        string   `json:"version"`
	GitCommit      string   `json:"git_commit,omitempty"`
	P2PProtocol    Protocol `json:"p2p_protocol"`
	LedgerProtocol Protocol `json:"ledger_protocol"`
}

// Current returns the Info of this build.
func Current() Info {
	return Info{
		Version:        Version,
		GitCommit:      GitCommit,
		P2PProtocol:    P2PProtocol,
		LedgerProtocol: LedgerProtocol,
	}
}
