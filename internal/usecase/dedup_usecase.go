package usecase

import (
	"context"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

// DedupUseCase ищет почти одинаковые изображения по перцептивному хэшу.
type DedupUseCase struct {
	fingerprinter Fingerprinter
	logger        logger.Logger
}

func NewDedupUC(fingerprinter Fingerprinter, logger logger.Logger) *DedupUseCase {
	return &DedupUseCase{
		fingerprinter: fingerprinter,
		logger:        logger,
	}
}

// Fingerprint считает отпечаток одного изображения.
func (d *DedupUseCase) Fingerprint(ctx context.Context, ref string) (domain.Fingerprint, error) {
	fp, ok := d.fingerprinter.PHash(ctx, ref)
	if !ok {
		return "", e.Wrap(ref, e.ErrInvalidImage)
	}

	return fp, nil
}

// FindDuplicates сравнивает запрос с кандидатами. Кандидаты, для которых
// не удалось посчитать отпечаток, пропускаются.
func (d *DedupUseCase) FindDuplicates(ctx context.Context, req DuplicatesReq) (*DuplicatesRes, error) {
	const op = "DedupUseCase.FindDuplicates"

	threshold := req.Threshold
	if threshold < 0 {
		threshold = domain.DefaultDuplicateThreshold
	}

	query, err := d.Fingerprint(ctx, req.QueryRef)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res := &DuplicatesRes{
		MatchingIndices: []int{},
		MatchingRefs:    []string{},
	}
	for i, fp := range d.fingerprinter.PHashMany(ctx, req.CandidateRefs) {
		if fp == "" {
			d.logger.Debugf("skip candidate %s: no fingerprint", req.CandidateRefs[i])
			continue
		}

		if domain.Same(query, fp, threshold) {
			res.MatchingIndices = append(res.MatchingIndices, i)
			res.MatchingRefs = append(res.MatchingRefs, req.CandidateRefs[i])
		}
	}
	res.HasDuplicates = len(res.MatchingIndices) > 0

	return res, nil
}
