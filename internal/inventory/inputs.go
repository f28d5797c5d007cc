package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/erazemk/sweetshop/internal/model"
	"github.com/erazemk/sweetshop/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Optional records whether a JSON field was present at all, so that an
// explicit null can be told apart from an omitted field.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a present Optional holding JSON null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Null, o.Value = true, zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// CreateItemInput is the body of a create-item request. Pointers tell an
// omitted field apart from a zero value.
type CreateItemInput struct {
	Name        *string          `json:"name"        validate:"required,min=1,max=200"`
	Category    *string          `json:"category"    validate:"required,min=1,max=100"`
	Price       *decimal.Decimal `json:"price"       validate:"required"`
	Quantity    *int             `json:"quantity"    validate:"required"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	ImageURL    *string          `json:"image_url"   validate:"omitempty,max=2048"`
}

func (in CreateItemInput) normalize() (model.NewItem, error) {
	in.Name = trimmed(in.Name)
	in.Category = trimmed(in.Category)

	if err := validate.Struct(in); err != nil {
		if tooLong(err) {
			return model.NewItem{}, invalid("Field value is too long")
		}
		return model.NewItem{}, invalid("Missing required fields: name, category, price, quantity")
	}
	if in.Price.IsNegative() || *in.Quantity < 0 {
		return model.NewItem{}, invalid("Price and quantity must be non-negative")
	}
	if err := checkPrice(*in.Price); err != nil {
		return model.NewItem{}, err
	}

	return model.NewItem{
		Name:        *in.Name,
		Category:    *in.Category,
		Price:       *in.Price,
		Quantity:    *in.Quantity,
		Description: emptyToNil(in.Description),
		ImageURL:    emptyToNil(in.ImageURL),
	}, nil
}

// UpdateItemInput is the body of a partial update. Only supplied fields
// are written; a null or blank description or image_url clears it.
type UpdateItemInput struct {
	Name        *string          `json:"name"        validate:"omitnil,min=1,max=200"`
	Category    *string          `json:"category"    validate:"omitnil,min=1,max=100"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Description Optional[string] `json:"description"`
	ImageURL    Optional[string] `json:"image_url"`
}

func (in UpdateItemInput) normalize() (model.ItemFields, error) {
	in.Name = trimmed(in.Name)
	in.Category = trimmed(in.Category)

	f := model.ItemFields{
		Name:     in.Name,
		Category: in.Category,
		Price:    in.Price,
		Quantity: in.Quantity,
	}
	f.Description, f.ClearDescription = optionalText(in.Description)
	f.ImageURL, f.ClearImageURL = optionalText(in.ImageURL)

	if f.Empty() {
		return f, invalid("No fields to update")
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return f, invalid("Price must be non-negative")
		}
		if err := checkPrice(*in.Price); err != nil {
			return f, err
		}
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		return f, invalid("Quantity must be non-negative")
	}
	if (f.Description != nil && len(*f.Description) > 2000) || (f.ImageURL != nil && len(*f.ImageURL) > 2048) {
		return f, invalid("Field value is too long")
	}
	if err := validate.Struct(in); err != nil {
		if tooLong(err) {
			return f, invalid("Field value is too long")
		}
		return f, invalid("Name and category must not be empty")
	}
	return f, nil
}

// QuantityInput is the body of purchase and restock requests.
type QuantityInput struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (in QuantityInput) check() error {
	if err := validate.Struct(in); err != nil {
		return invalid("Quantity must be a positive number")
	}
	return nil
}

// checkPrice rejects prices with sub-cent digits or too large to store.
func checkPrice(d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return invalid("Price must have at most two decimal places")
	}
	if d.GreaterThan(store.MaxAmount) {
		return invalid("Price is too large")
	}
	return nil
}

func tooLong(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Tag() == "max" {
			return true
		}
	}
	return false
}

// trimmed strips surrounding whitespace from supplied text.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// optionalText maps a supplied optional text field to the value to write,
// or to clear when it is null or blank.
func optionalText(o Optional[string]) (value *string, null bool) {
	if !o.Set {
		return nil, false
	}
	if o.Null || strings.TrimSpace(o.Value) == "" {
		return nil, true
	}
	v := o.Value
	return &v, false
}

// emptyToNil drops blank optional text so it is stored as absent.
func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
