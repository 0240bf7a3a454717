package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DRSN-tech/image-search/internal/delivery/cli"
	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/usecase"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeIndex struct {
	buildReq usecase.BuildReq
	removed  []int64
	updated  []int64
	res      *usecase.BuildRes
	err      error
}

func (f *fakeIndex) Build(_ context.Context, req usecase.BuildReq) (*usecase.BuildRes, error) {
	f.buildReq = req
	return f.res, f.err
}

func (f *fakeIndex) Rebuild(context.Context) (*usecase.BuildRes, error) {
	return f.res, f.err
}

func (f *fakeIndex) UpdateProduct(_ context.Context, id int64) (*usecase.BuildRes, error) {
	f.updated = append(f.updated, id)
	return f.res, f.err
}

func (f *fakeIndex) RemoveProduct(_ context.Context, id int64) (*usecase.BuildRes, error) {
	f.removed = append(f.removed, id)
	return f.res, f.err
}

type fakeConsistency struct {
	fix    bool
	report *usecase.ConsistencyReport
}

func (f *fakeConsistency) Check(_ context.Context, fix bool) (*usecase.ConsistencyReport, error) {
	f.fix = fix
	return f.report, nil
}

type fakeDedup struct {
	req usecase.DuplicatesReq
}

func (f *fakeDedup) Fingerprint(context.Context, string) (domain.Fingerprint, error) {
	return "8000000000000000", nil
}

func (f *fakeDedup) FindDuplicates(_ context.Context, req usecase.DuplicatesReq) (*usecase.DuplicatesRes, error) {
	f.req = req
	return &usecase.DuplicatesRes{HasDuplicates: true, MatchingIndices: []int{0}, MatchingRefs: req.CandidateRefs[:1]}, nil
}

var _ = Describe("Root command", func() {
	var (
		index       *fakeIndex
		consistency *fakeConsistency
		dedup       *fakeDedup
		devices     []string
		released    int
		factoryErr  error
	)

	run := func(args ...string) (string, error) {
		factory := func(_ context.Context, device string) (*cli.Services, func(context.Context) error, error) {
			if factoryErr != nil {
				return nil, nil, factoryErr
			}
			devices = append(devices, device)
			services := &cli.Services{Index: index, Consistency: consistency, Dedup: dedup}
			return services, func(context.Context) error { released++; return nil }, nil
		}

		var out bytes.Buffer
		cmd := cli.NewRootCmd(factory, logger.NewNopLogger())
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)

		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	BeforeEach(func() {
		index = &fakeIndex{res: &usecase.BuildRes{Operation: domain.OperationBuild, Indexed: 3, Skipped: 1, IndexSize: 3}}
		consistency = &fakeConsistency{report: &usecase.ConsistencyReport{IndexSize: 2, CatalogSize: 3, MissingFromIndex: 1, NeedsRepair: true}}
		dedup = &fakeDedup{}
		devices = nil
		released = 0
		factoryErr = nil
	})

	It("builds the index with the requested flags", func() {
		out, err := run("build-image-index", "--force", "--device", "cuda")
		Expect(err).NotTo(HaveOccurred())
		Expect(index.buildReq.Force).To(BeTrue())
		Expect(devices).To(Equal([]string{"cuda"}))
		Expect(released).To(Equal(1))
		Expect(out).To(ContainSubstring("build: indexed=3 skipped=1 failed=0 size=3"))
	})

	It("prints a no-op result", func() {
		index.res = &usecase.BuildRes{Operation: domain.OperationBuild, IndexSize: 5, NoOp: true}

		out, err := run("build-image-index")
		Expect(err).NotTo(HaveOccurred())
		Expect(devices).To(Equal([]string{""}))
		Expect(out).To(ContainSubstring("nothing to do, index size 5"))
	})

	It("updates and removes a single product", func() {
		_, err := run("update-image-index", "--product-id", "42")
		Expect(err).NotTo(HaveOccurred())
		Expect(index.updated).To(Equal([]int64{42}))

		index.res = &usecase.BuildRes{Operation: domain.OperationRemove, IndexSize: 2, NoOp: true}
		out, err := run("remove-from-image-index", "--product-id", "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(index.removed).To(Equal([]int64{7}))
		Expect(out).To(ContainSubstring("remove: nothing to do"))
	})

	It("requires a product id", func() {
		_, err := run("update-image-index")
		Expect(err).To(HaveOccurred())
		Expect(index.updated).To(BeEmpty())
	})

	It("prints the consistency report as json", func() {
		out, err := run("check-image-index", "--fix")
		Expect(err).NotTo(HaveOccurred())
		Expect(consistency.fix).To(BeTrue())

		var report usecase.ConsistencyReport
		Expect(json.Unmarshal([]byte(out), &report)).To(Succeed())
		Expect(report.MissingFromIndex).To(Equal(1))
		Expect(report.NeedsRepair).To(BeTrue())
	})

	It("prints a fingerprint or a duplicate report", func() {
		out, err := run("phash", "a.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("8000000000000000\n"))

		out, err = run("phash", "a.png", "--compare", "b.png,c.png", "--threshold", "3")
		Expect(err).NotTo(HaveOccurred())
		Expect(dedup.req).To(Equal(usecase.DuplicatesReq{QueryRef: "a.png", CandidateRefs: []string{"b.png", "c.png"}, Threshold: 3}))
		Expect(out).To(ContainSubstring(`"has_dups": true`))
	})

	It("returns the use case error and still releases resources", func() {
		index.err = e.ErrEmptyCatalog

		_, err := run("rebuild-image-index")
		Expect(err).To(MatchError(e.ErrEmptyCatalog))
		Expect(released).To(Equal(1))
	})

	It("returns the factory error", func() {
		factoryErr = errors.New("no encoder")

		_, err := run("build-image-index")
		Expect(err).To(MatchError("no encoder"))
		Expect(released).To(BeZero())
	})
})

var _ = DescribeTable("ExitCode",
	func(err error, code int) {
		Expect(cli.ExitCode(err, logger.NewNopLogger())).To(Equal(code))
	},
	Entry("success", nil, cli.ExitOK),
	Entry("empty catalog", fmt.Errorf("build: %w", e.ErrEmptyCatalog), cli.ExitOK),
	Entry("unavailable catalog", fmt.Errorf("catalog.json: %w", e.ErrCatalogUnavailable), cli.ExitOK),
	Entry("locked job", e.ErrJobLocked, cli.ExitError),
	Entry("encoder failure", e.ErrEncoderUnavailable, cli.ExitError),
)
