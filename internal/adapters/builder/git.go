package builder

import (
	"context"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/rs/zerolog/log"
)

// cloneContext clones repo into a temporary directory, shallow unless repo is
// a local path. The returned cleanup removes it.
func cloneContext(ctx context.Context, repo, ref string) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "range-build-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	opts := &git.CloneOptions{
		URL:          repo,
		SingleBranch: true,
	}
	if ep, err := transport.NewEndpoint(repo); err == nil && ep.Protocol != "file" {
		opts.Depth = 1
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}

	log.Info().Str("repo", repo).Str("dir", tmpDir).Msg("cloning build context")
	if _, err := git.PlainCloneContext(ctx, tmpDir, false, opts); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to clone repo: %w", err)
	}
	return tmpDir, cleanup, nil
}
