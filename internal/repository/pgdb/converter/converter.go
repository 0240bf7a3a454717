package converter

import (
	"encoding/json"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// ProductConverter преобразует строки каталога в domain.RawProduct.
type ProductConverter struct{}

func (ProductConverter) ToRaw(model *ProductModel) domain.RawProduct {
	raw := domain.RawProduct{
		ID:       model.ID,
		Name:     model.Name,
		IsActive: model.IsActive,
		Gallery:  model.Gallery,
	}
	if model.Price != nil {
		raw.Price = *model.Price
	}
	if model.ImageURL != nil {
		raw.ImageURL = *model.ImageURL
	}
	if model.Image != nil {
		raw.ImageFile = *model.Image
	}
	if model.CategoryID != nil {
		raw.Category = &domain.Category{ID: *model.CategoryID}
		if model.CategoryName != nil {
			raw.Category.Name = *model.CategoryName
		}
		if model.CategorySlug != nil {
			raw.Category.Slug = *model.CategorySlug
		}
	}
	if len(model.Extra) > 0 {
		var extra map[string]any
		if err := json.Unmarshal(model.Extra, &extra); err == nil && len(extra) > 0 {
			raw.Extra = extra
		}
	}

	return raw
}

// FingerprintConverter преобразует отпечатки между domain и моделью PostgreSQL.
type FingerprintConverter struct{}

func (FingerprintConverter) ToModel(entity domain.ProductFingerprint) FingerprintModel {
	return FingerprintModel{
		ProductID:   entity.ProductID,
		Fingerprint: string(entity.Fingerprint),
		ImageRef:    entity.ImageRef,
	}
}

func (FingerprintConverter) ToEntity(model FingerprintModel) domain.ProductFingerprint {
	return domain.ProductFingerprint{
		ProductID:   model.ProductID,
		Fingerprint: domain.Fingerprint(model.Fingerprint),
		ImageRef:    model.ImageRef,
	}
}

// IndexRunConverter преобразует записи журнала индексации.
type IndexRunConverter struct{}

func (IndexRunConverter) ToModel(entity domain.IndexRun) IndexRunModel {
	return IndexRunModel{
		ID:         entity.ID,
		Operation:  string(entity.Operation),
		Device:     string(entity.Device),
		Indexed:    entity.Indexed,
		Skipped:    entity.Skipped,
		Failed:     entity.Failed,
		IndexSize:  entity.IndexSize,
		StartedAt:  entity.StartedAt,
		FinishedAt: entity.FinishedAt,
	}
}

func (IndexRunConverter) ToEntity(model IndexRunModel) domain.IndexRun {
	return domain.IndexRun{
		ID:         model.ID,
		Operation:  domain.IndexOperation(model.Operation),
		Device:     domain.Device(model.Device),
		Indexed:    model.Indexed,
		Skipped:    model.Skipped,
		Failed:     model.Failed,
		IndexSize:  model.IndexSize,
		StartedAt:  model.StartedAt,
		FinishedAt: model.FinishedAt,
	}
}
