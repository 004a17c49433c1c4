package utils

import (
	"context"
	"errors"
	"reflect"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func ProcessValidationErrors(err error) map[string]string {

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"error": err.Error()}
	}

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// get type name of struct
func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// FetchModel loads one row by id within the tenant, translating
// gorm.ErrRecordNotFound into the business-level not-found sentinel.
func FetchModel[T any](ctx context.Context, tenantId string, id int) (*T, error) {
	db := config.GetDB()
	var result T
	err := db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantId, id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func ResourceCountWhere[T any](ctx context.Context, tenantId string, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var m T
	var count int64
	err := db.WithContext(ctx).Model(&m).
		Where("tenant_id = ?", tenantId).
		Where(cond, values...).
		Count(&count).Error
	return count, err
}

// check if id exists, using tenant_id in WHERE, return RecordNotFound Error
func ValidateResourceId[T any](ctx context.Context, tenantId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, tenantId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}
