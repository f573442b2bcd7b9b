package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductNameMinLength - минимальная длина имени товара.
const ProductNameMinLength = 3

// Product - позиция каталога с ценой за единицу.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductPatch описывает частичное обновление товара; nil-поля не меняются.
type ProductPatch struct {
	Name      *string
	UnitPrice *decimal.Decimal
}

// Empty сообщает, что патч ничего не меняет.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.UnitPrice == nil
}

// Apply применяет патч к копии товара.
func (p ProductPatch) Apply(product Product) Product {
	if p.Name != nil {
		product.Name = strings.TrimSpace(*p.Name)
	}
	if p.UnitPrice != nil {
		product.UnitPrice = NormalizePrice(*p.UnitPrice)
	}
	return product
}

// Validate проверяет имя и цену товара.
func (p Product) Validate() error {
	if len([]rune(strings.TrimSpace(p.Name))) < ProductNameMinLength {
		return ErrProductNameInvalid
	}
	if !p.UnitPrice.IsPositive() {
		return ErrProductPriceInvalid
	}
	return nil
}

// NormalizePrice округляет цену до двух знаков (NUMERIC(12,2) в хранилище).
func NormalizePrice(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
