package terraform

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
)

var _ = Describe("Arena", func() {
	var (
		root     string
		template string
		sshKey   string
		arena    *Arena
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		template = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(template, "main.tf"), []byte(`resource "x" "y" {}`), 0o644)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(template, "modules", "vm"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(template, "modules", "vm", "vm.tf"), []byte("# vm"), 0o644)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(template, ".terraform"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(template, ".terraform", "state"), []byte("stale"), 0o644)).To(Succeed())

		sshKey = filepath.Join(GinkgoT().TempDir(), "key.pub")
		Expect(os.WriteFile(sshKey, []byte("ssh-rsa AAAA"), 0o644)).To(Succeed())

		arena = NewArena(ArenaConfig{WorkRoot: root, TemplateDir: template, SSHKeyFile: sshKey})
	})

	It("should give each run a fresh locked copy of the template", func() {
		runID := uuid.New()
		ws, err := arena.Acquire(context.Background(), runID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.Dir).To(Equal(filepath.Join(root, constants.ExecutionsDir, runID.String())))

		Expect(filepath.Join(ws.Dir, "main.tf")).To(BeARegularFile())
		Expect(filepath.Join(ws.Dir, "modules", "vm", "vm.tf")).To(BeARegularFile())
		Expect(filepath.Join(ws.Dir, ".terraform")).NotTo(BeADirectory())
		key, err := os.ReadFile(filepath.Join(ws.Dir, constants.SSHPublicKeyFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(key)).To(Equal("ssh-rsa AAAA"))

		other := flock.New(filepath.Join(ws.Dir, constants.WorkspaceLockFile))
		locked, err := other.TryLock()
		Expect(err).NotTo(HaveOccurred())
		Expect(locked).To(BeFalse())

		Expect(arena.Release(ws, true)).To(Succeed())
		locked, err = other.TryLock()
		Expect(err).NotTo(HaveOccurred())
		Expect(locked).To(BeTrue())
		Expect(other.Unlock()).To(Succeed())
	})

	It("should never hand out the same directory twice", func() {
		runID := uuid.New()
		ws, err := arena.Acquire(context.Background(), runID)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(arena.Release, ws, false)

		_, err = arena.Acquire(context.Background(), runID)
		Expect(errors.Is(err, ErrWorkspaceExists)).To(BeTrue())
	})

	It("should keep the workspace of an applied run and remove a failed one", func() {
		applied, err := arena.Acquire(context.Background(), uuid.New())
		Expect(err).NotTo(HaveOccurred())
		failed, err := arena.Acquire(context.Background(), uuid.New())
		Expect(err).NotTo(HaveOccurred())

		Expect(arena.Release(applied, true)).To(Succeed())
		Expect(arena.Release(failed, false)).To(Succeed())

		Expect(applied.Dir).To(BeADirectory())
		Expect(failed.Dir).NotTo(BeADirectory())
	})

	It("should keep failed workspaces when configured to", func() {
		arena = NewArena(ArenaConfig{WorkRoot: root, TemplateDir: template, KeepFailed: true})
		ws, err := arena.Acquire(context.Background(), uuid.New())
		Expect(err).NotTo(HaveOccurred())
		Expect(arena.Release(ws, false)).To(Succeed())
		Expect(ws.Dir).To(BeADirectory())
	})

	It("should clean up when the template is missing", func() {
		arena = NewArena(ArenaConfig{WorkRoot: root, TemplateDir: filepath.Join(root, "absent")})
		runID := uuid.New()
		_, err := arena.Acquire(context.Background(), runID)
		Expect(err).To(HaveOccurred())
		Expect(arena.Path(runID)).NotTo(BeADirectory())
	})

	It("should remove the directory when the lock cannot be taken", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runID := uuid.New()

		_, err := arena.Acquire(ctx, runID)
		Expect(err).To(MatchError(context.Canceled))
		Expect(arena.Path(runID)).NotTo(BeAnExistingFile())

		ws, err := arena.Acquire(context.Background(), runID)
		Expect(err).NotTo(HaveOccurred())
		Expect(arena.Release(ws, false)).To(Succeed())
	})

	It("should discard the workspace of an orphaned run", func() {
		ws, err := arena.Acquire(context.Background(), uuid.New())
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.lock.Unlock()).To(Succeed())

		Expect(arena.Discard(ws.RunID)).To(Succeed())
		Expect(ws.Dir).NotTo(BeADirectory())
	})
})
