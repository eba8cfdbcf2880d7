package food

import (
	"strings"
	"unicode"
)

// Canonical field names. These are the CSV header keys after normalization,
// the store attribute names and the change-feed image keys.
const (
	FieldFoodName       = "food_name"
	FieldScientificName = "scientific_name"
	FieldGroup          = "group"
	FieldSubGroup       = "sub_group"
)

// Fields lists the record attributes in store column order.
var Fields = []string{FieldFoodName, FieldScientificName, FieldGroup, FieldSubGroup}

// NotPresent is logged in place of an attribute missing from a change image.
const NotPresent = "not present"

// FoodRecord is one food item. FoodName is the primary key: writing a record
// whose name already exists replaces the stored value.
type FoodRecord struct {
	FoodName       string `json:"food_name"`
	ScientificName string `json:"scientific_name"`
	Group          string `json:"group"`
	SubGroup       string `json:"sub_group"`
}

// Row is one normalized CSV data row keyed by canonical field name.
type Row map[string]string

// CanonicalField folds a header or attribute name to its canonical form:
// surrounding whitespace is dropped, letters are lower-cased and every
// internal whitespace run becomes a single underscore.
//
// "Food Name" -> "food_name"
// "SUB\tGROUP" -> "sub_group"
// "food_name" -> "food_name"
func CanonicalField(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name))
	inSpace := false
	for _, r := range name {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// RecordFromRow builds a FoodRecord from a normalized row. Columns other than
// the four record fields are ignored; missing ones become empty strings.
// Values are copied unchanged.
func RecordFromRow(row Row) FoodRecord {
	return FoodRecord{
		FoodName:       row[FieldFoodName],
		ScientificName: row[FieldScientificName],
		Group:          row[FieldGroup],
		SubGroup:       row[FieldSubGroup],
	}
}

// Validate reports structural defects that no amount of retrying can fix.
func (r FoodRecord) Validate() error {
	if strings.TrimSpace(r.FoodName) == "" {
		return ErrMissingKey
	}
	return nil
}

// Attributes returns the record as canonical attribute name -> value.
func (r FoodRecord) Attributes() map[string]string {
	return map[string]string{
		FieldFoodName:       r.FoodName,
		FieldScientificName: r.ScientificName,
		FieldGroup:          r.Group,
		FieldSubGroup:       r.SubGroup,
	}
}
