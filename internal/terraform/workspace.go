package terraform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
)

const lockRetryDelay = 100 * time.Millisecond

// ErrWorkspaceExists is returned when a run id already owns a directory.
var ErrWorkspaceExists = errors.New("workspace already exists")

// Arena hands out one working directory per run under
// <root>/executions/<runID>. A directory is never shared: it is created
// fresh for its run and held under an exclusive flock until released.
type Arena struct {
	root        string
	templateDir string
	sshKeyFile  string
	keepFailed  bool
	logger      *zap.SugaredLogger
}

type ArenaConfig struct {
	WorkRoot    string
	TemplateDir string
	SSHKeyFile  string
	KeepFailed  bool
}

func NewArena(cfg ArenaConfig) *Arena {
	return &Arena{
		root:        filepath.Join(cfg.WorkRoot, constants.ExecutionsDir),
		templateDir: cfg.TemplateDir,
		sshKeyFile:  cfg.SSHKeyFile,
		keepFailed:  cfg.KeepFailed,
		logger:      zap.S().Named("terraform:arena"),
	}
}

// Workspace is a run's exclusive directory.
type Workspace struct {
	RunID uuid.UUID
	Dir   string
	lock  *flock.Flock
}

// Path returns the directory a run id maps to, whether or not it exists.
func (a *Arena) Path(runID uuid.UUID) string {
	return filepath.Join(a.root, runID.String())
}

// Acquire creates and locks the workspace of runID and fills it with the
// template files.
func (a *Arena) Acquire(ctx context.Context, runID uuid.UUID) (*Workspace, error) {
	dir := a.Path(runID)
	if err := os.MkdirAll(a.root, 0o750); err != nil {
		return nil, fmt.Errorf("creating arena %s: %w", a.root, err)
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrWorkspaceExists)
		}
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, constants.WorkspaceLockFile))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			a.logger.Warnw("failed to remove unlocked workspace", "dir", dir, "error", rmErr)
		}
		if err != nil {
			return nil, fmt.Errorf("acquire flock %s: %w", lock.Path(), err)
		}
		return nil, fmt.Errorf("failed to acquire flock %s: context done", lock.Path())
	}
	ws := &Workspace{RunID: runID, Dir: dir, lock: lock}

	fill := func() error {
		if err := copyTemplate(a.templateDir, dir); err != nil {
			return err
		}
		if a.sshKeyFile != "" {
			if err := copyFile(a.sshKeyFile, filepath.Join(dir, constants.SSHPublicKeyFile), 0o644); err != nil {
				return fmt.Errorf("copying ssh public key: %w", err)
			}
		}
		return nil
	}
	if err := fill(); err != nil {
		_ = a.Release(ws, false)
		return nil, err
	}
	a.logger.Infow("workspace acquired", "run-id", runID, "dir", dir)
	return ws, nil
}

// Release unlocks ws. Workspaces of applied runs are kept since they hold
// the terraform state; failed ones are removed unless configured otherwise.
func (a *Arena) Release(ws *Workspace, applied bool) error {
	if ws == nil {
		return nil
	}
	if err := ws.lock.Unlock(); err != nil {
		return fmt.Errorf("release flock %s: %w", ws.lock.Path(), err)
	}
	if applied || a.keepFailed {
		a.logger.Infow("workspace kept", "run-id", ws.RunID, "dir", ws.Dir, "applied", applied)
		return nil
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("removing workspace %s: %w", ws.Dir, err)
	}
	a.logger.Infow("workspace removed", "run-id", ws.RunID)
	return nil
}

// Discard removes the workspace of a run that no live process owns.
func (a *Arena) Discard(runID uuid.UUID) error {
	if a.keepFailed {
		return nil
	}
	if err := os.RemoveAll(a.Path(runID)); err != nil {
		return fmt.Errorf("removing workspace of run %s: %w", runID, err)
	}
	return nil
}

// copyTemplate copies the non-hidden content of src into dst.
func copyTemplate(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("terraform template %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("terraform template %s is not a directory", src)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target, 0o640)
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // configured template path
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
