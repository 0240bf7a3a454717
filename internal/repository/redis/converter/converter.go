package converter

import "github.com/DRSN-tech/image-search/internal/domain"

// ProductConverter преобразует карточки товаров между domain и моделью Redis.
type ProductConverter struct{}

func (ProductConverter) ToRedisModel(entity *domain.ProductRecord) *ProductRedisModel {
	model := &ProductRedisModel{
		ID:       entity.ID,
		Name:     entity.Name,
		Price:    entity.Price,
		IsActive: entity.IsActive,
		ImageRef: entity.ImageRef,
		Extra:    entity.Extra,
	}
	if entity.Category != nil {
		model.CategoryID = entity.Category.ID
		model.CategoryName = entity.Category.Name
		model.CategorySlug = entity.Category.Slug
	}

	return model
}

func (ProductConverter) ToEntity(model *ProductRedisModel) *domain.ProductRecord {
	entity := &domain.ProductRecord{
		ID:       model.ID,
		Name:     model.Name,
		Price:    model.Price,
		IsActive: model.IsActive,
		ImageRef: model.ImageRef,
		Extra:    model.Extra,
	}
	if model.CategoryID != 0 || model.CategoryName != "" {
		entity.Category = &domain.Category{
			ID:   model.CategoryID,
			Name: model.CategoryName,
			Slug: model.CategorySlug,
		}
	}

	return entity
}

func (c ProductConverter) ToArrRedisModel(entities []domain.ProductRecord) []ProductRedisModel {
	result := make([]ProductRedisModel, 0, len(entities))
	for i := range entities {
		result = append(result, *c.ToRedisModel(&entities[i]))
	}

	return result
}
