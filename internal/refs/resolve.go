package refs

import (
	"fmt"

	"wit/internal/errors"
)

// MinPrefix is the shortest commit-id prefix accepted as an indicator.
const MinPrefix = 6

type Kind int

const (
	KindCommit Kind = iota
	KindBranch
	KindHead
)

func (k Kind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindHead:
		return "head"
	default:
		return "commit"
	}
}

// Target is an indicator resolved to a commit id, tagged with how it resolved.
type Target struct {
	Input string
	ID    string
	Kind  Kind
	// Branch is the branch the target keeps active: the named branch for
	// KindBranch, the current active branch for KindHead, empty otherwise.
	Branch string
}

// Commits looks up commit ids known to the snapshot store.
type Commits interface {
	Exists(id string) bool
	ByPrefix(prefix string) ([]string, error)
}

// Resolve turns a user indicator into a Target. Branch names win over commit
// ids; "HEAD" names the current commit and keeps the active branch.
func Resolve(set *Set, input string, commits Commits) (Target, error) {
	if input == headName {
		if !set.HasCommit() {
			return Target{}, errors.CommitRequired("resolving HEAD")
		}
		return Target{Input: input, ID: set.Head, Kind: KindHead, Branch: set.Active}, nil
	}

	if id, ok := set.BranchCommit(input); ok {
		return Target{Input: input, ID: id, Kind: KindBranch, Branch: input}, nil
	}

	if commits.Exists(input) {
		return Target{Input: input, ID: input, Kind: KindCommit}, nil
	}

	if len(input) >= MinPrefix {
		ids, err := commits.ByPrefix(input)
		if err != nil {
			return Target{}, fmt.Errorf("resolving %s: %w", input, err)
		}
		switch len(ids) {
		case 1:
			return Target{Input: input, ID: ids[0], Kind: KindCommit}, nil
		case 0:
		default:
			return Target{}, errors.NotFound(fmt.Sprintf("commit prefix %q is ambiguous (%d matches)", input, len(ids)))
		}
	}

	return Target{}, errors.CommitNotFound(input)
}
