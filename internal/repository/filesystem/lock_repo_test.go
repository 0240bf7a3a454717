package filesystem_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/image-search/internal/repository/filesystem"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LockRepo", func() {
	var (
		ctx  context.Context
		path string
		lock *filesystem.LockRepo
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "state", ".index.lock")
		lock = filesystem.NewLockRepo(path, logger.NewNopLogger())
	})

	It("allows a single holder at a time", func() {
		unlock, err := lock.Acquire(ctx, "image-index")
		Expect(err).NotTo(HaveOccurred())

		owner, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(owner)).To(ContainSubstring("job=image-index"))

		_, err = filesystem.NewLockRepo(path, logger.NewNopLogger()).Acquire(ctx, "image-index")
		Expect(err).To(MatchError(e.ErrJobLocked))

		Expect(unlock(ctx)).To(Succeed())
		Expect(path).NotTo(BeAnExistingFile())

		unlock, err = lock.Acquire(ctx, "image-index")
		Expect(err).NotTo(HaveOccurred())
		Expect(unlock(ctx)).To(Succeed())
	})

	It("tolerates a lock file removed by hand", func() {
		unlock, err := lock.Acquire(ctx, "image-index")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Remove(path)).To(Succeed())
		Expect(unlock(ctx)).To(Succeed())
	})
})
