package usecase

import (
	"cmp"
	"context"
	"math/rand"
	"slices"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

const (
	DefaultCheckListLimit = 20

	syntheticSeed = 42
	syntheticTopK = 10
)

// ConsistencyUseCase сверяет индекс с активным каталогом и при необходимости чинит его.
type ConsistencyUseCase struct {
	catalog      *CatalogAdapter
	index        VectorIndex
	indexer      *IndexUseCase
	lock         JobLock
	fingerprints FingerprintRepository
	dupThreshold int
	listLimit    int
	logger       logger.Logger
}

func NewConsistencyUC(
	catalog *CatalogAdapter,
	index VectorIndex,
	indexer *IndexUseCase,
	lock JobLock,
	fingerprints FingerprintRepository,
	dupThreshold int,
	listLimit int,
	logger logger.Logger,
) *ConsistencyUseCase {
	if dupThreshold < 0 {
		dupThreshold = domain.DefaultDuplicateThreshold
	}
	if listLimit <= 0 {
		listLimit = DefaultCheckListLimit
	}

	return &ConsistencyUseCase{
		catalog:      catalog,
		index:        index,
		indexer:      indexer,
		lock:         lock,
		fingerprints: fingerprints,
		dupThreshold: dupThreshold,
		listLimit:    listLimit,
		logger:       logger,
	}
}

// Check строит отчёт о расхождениях. С fix запускает полную перестройку,
// если в индексе есть лишние товары, нет товаров с изображением или нарушены инварианты.
func (c *ConsistencyUseCase) Check(ctx context.Context, fix bool) (*ConsistencyReport, error) {
	const op = "ConsistencyUseCase.Check"

	report, err := c.check(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if !fix || !report.NeedsRepair {
		return report, nil
	}

	unlock, err := c.lock.Acquire(ctx, IndexJobKey)
	if err != nil {
		return report, e.Wrap(op, err)
	}
	defer c.indexer.release(unlock)

	c.logger.Infof("repairing index: missing_from_db=%d missing_with_image=%d violations=%d",
		report.MissingFromDB, report.MissingWithImage, len(report.Violations))

	res, err := c.indexer.repair(ctx)
	if err != nil {
		return report, e.Wrap(op, err)
	}

	report.Repaired = true
	report.IndexSize = res.IndexSize

	return report, nil
}

func (c *ConsistencyUseCase) check(ctx context.Context) (*ConsistencyReport, error) {
	health := c.index.Health()
	indexed := c.index.IDs()

	report := &ConsistencyReport{
		IndexSize:  health.NTotal,
		Violations: health.Violations,
	}

	// Активный каталог
	active := make(map[int64]bool)
	var catalogOrder []int64
	for p, err := range c.catalog.ActiveProducts(ctx) {
		if err != nil {
			return nil, err
		}
		usable := p.HasImage() && !c.indexer.Skip.Skip(p.ImageRef)
		active[p.ID] = usable
		catalogOrder = append(catalogOrder, p.ID)
		if !p.HasImage() {
			report.WithoutImage++
		}
	}
	report.CatalogSize = len(active)

	inIndex := make(map[int64]struct{}, len(indexed))
	for _, id := range indexed {
		inIndex[id] = struct{}{}
		if _, ok := active[id]; !ok {
			report.MissingFromDB++
			report.MissingFromDBIDs = append(report.MissingFromDBIDs, id)
		}
	}

	for _, id := range catalogOrder {
		if _, ok := inIndex[id]; ok {
			continue
		}
		report.MissingFromIndex++
		report.MissingFromIndexIDs = append(report.MissingFromIndexIDs, id)
		if active[id] {
			report.MissingWithImage++
		}
	}

	if len(report.MissingFromDBIDs) > c.listLimit {
		report.MissingFromDBIDs = nil
	}
	if len(report.MissingFromIndexIDs) > c.listLimit {
		report.MissingFromIndexIDs = nil
	}

	report.Search = c.syntheticSearch(ctx)
	report.Duplicates = c.duplicates(ctx)
	report.NeedsRepair = report.MissingFromDB > 0 || report.MissingWithImage > 0 || len(report.Violations) > 0

	return report, nil
}

// syntheticSearch ищет по детерминированному случайному единичному вектору.
func (c *ConsistencyUseCase) syntheticSearch(ctx context.Context) SyntheticSearch {
	if !c.index.Initialized() || c.index.Len() == 0 {
		return SyntheticSearch{}
	}

	hits, err := c.index.Search(ctx, SyntheticVector(syntheticSeed), syntheticTopK, 0)
	if err != nil {
		c.logger.Warnf("synthetic search failed: %v", err)
		return SyntheticSearch{}
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ProductID
	}

	return SyntheticSearch{
		Functional: len(hits) > 0,
		Hits:       len(hits),
		Resolvable: len(c.catalog.ByIDs(ctx, ids)),
	}
}

// duplicates группирует товары с почти одинаковыми отпечатками изображений.
func (c *ConsistencyUseCase) duplicates(ctx context.Context) []DuplicateGroup {
	if c.fingerprints == nil {
		return nil
	}

	fps, err := c.fingerprints.All(ctx)
	if err != nil {
		c.logger.Warnf("failed to load image fingerprints: %v", err)
		return nil
	}
	slices.SortFunc(fps, func(a, b domain.ProductFingerprint) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	var groups []DuplicateGroup
	grouped := make([]bool, len(fps))
	for i := range fps {
		if grouped[i] {
			continue
		}

		group := DuplicateGroup{Fingerprint: fps[i].Fingerprint, ProductIDs: []int64{fps[i].ProductID}}
		for j := i + 1; j < len(fps); j++ {
			if !grouped[j] && domain.Same(fps[i].Fingerprint, fps[j].Fingerprint, c.dupThreshold) {
				grouped[j] = true
				group.ProductIDs = append(group.ProductIDs, fps[j].ProductID)
			}
		}

		if len(group.ProductIDs) > 1 {
			groups = append(groups, group)
		}
	}

	return groups
}

// SyntheticVector возвращает воспроизводимый случайный единичный вектор размерности domain.Dim.
func SyntheticVector(seed int64) domain.Vector {
	r := rand.New(rand.NewSource(seed))

	v := make(domain.Vector, domain.Dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}

	n, err := v.Normalize()
	if err != nil {
		v[0] = 1
		return v
	}

	return n
}
