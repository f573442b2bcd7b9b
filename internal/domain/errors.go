package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation - входные данные не прошли проверку (400).
	ErrValidation = errors.New("validation failed")
	// ErrOrderNumberRequired - пустой номер заказа.
	ErrOrderNumberRequired = fmt.Errorf("%w: order number is required", ErrValidation)
	// ErrStatusRequired - пустой статус заказа.
	ErrStatusRequired = fmt.Errorf("%w: status is required", ErrValidation)
	// ErrItemQtyInvalid - количество товара в позиции <= 0.
	ErrItemQtyInvalid = fmt.Errorf("%w: item quantity must be greater than zero", ErrValidation)
	// ErrItemQtyOverflow - суммарное количество товара в позиции не помещается в int32.
	ErrItemQtyOverflow = fmt.Errorf("%w: item quantity is too large", ErrValidation)
	// ErrItemPriceInvalid - отрицательная цена позиции.
	ErrItemPriceInvalid = fmt.Errorf("%w: item price must be non-negative", ErrValidation)
	// ErrDuplicateProduct - в заказе две позиции с одним товаром.
	ErrDuplicateProduct = fmt.Errorf("%w: order contains duplicate product", ErrValidation)
	// ErrForeignItem - позиция ссылается на чужой заказ.
	ErrForeignItem = fmt.Errorf("%w: item belongs to another order", ErrValidation)
	// ErrProductNameInvalid - имя товара короче трёх символов.
	ErrProductNameInvalid = fmt.Errorf("%w: product name must be at least 3 characters", ErrValidation)
	// ErrProductPriceInvalid - цена товара должна быть положительной.
	ErrProductPriceInvalid = fmt.Errorf("%w: product unit price must be positive", ErrValidation)
	// ErrNothingToUpdate - в запросе на обновление нет ни одного поля.
	ErrNothingToUpdate = fmt.Errorf("%w: nothing to update", ErrValidation)

	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrReferenceNotFound - заказ ссылается на несуществующий товар.
	ErrReferenceNotFound = errors.New("referenced product not found")

	// ErrInvalidOperation - операция запрещена текущим состоянием агрегата.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrOrderCompleted - попытка изменить завершённый заказ.
	ErrOrderCompleted = fmt.Errorf("%w: order is completed", ErrInvalidOperation)

	// ErrPersistence - сбой хранилища; детали драйвера только в логах.
	ErrPersistence = errors.New("persistence failure")
	// ErrOrderConflict - заказ с таким идентификатором уже существует.
	ErrOrderConflict = fmt.Errorf("%w: order already exists", ErrPersistence)
	// ErrProductConflict - товар с таким идентификатором уже существует.
	ErrProductConflict = fmt.Errorf("%w: product already exists", ErrPersistence)

	// ErrOutboxPublish - сообщение outbox не найдено или не опубликовано.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired - пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired - пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists - ключ уже занят (запрос обрабатывается или завершён).
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch - тот же ключ, но другое тело запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different payload")
	// ErrIdempotencyKeyNotFound - ключа нет в хранилище.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// PersistenceError оборачивает ошибку драйвера в ErrPersistence с именем операции.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsNotFound сообщает, что ошибка означает отсутствие сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrReferenceNotFound)
}

// IsIdempotencyConflict проверяет конфликт ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
