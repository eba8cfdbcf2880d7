package food

import (
	"errors"
	"testing"
)

func TestCanonicalField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "title case with space", input: "Food Name", want: "food_name"},
		{name: "lower case with space", input: "food name", want: "food_name"},
		{name: "already canonical", input: "food_name", want: "food_name"},
		{name: "upper case", input: "SCIENTIFIC NAME", want: "scientific_name"},
		{name: "whitespace run collapsed", input: "sub  \t group", want: "sub_group"},
		{name: "surrounding whitespace dropped", input: "  Group  ", want: "group"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
		{name: "non-ascii letters lowered", input: "Nom Éspece", want: "nom_éspece"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalField(tt.input); got != tt.want {
				t.Errorf("CanonicalField(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCanonicalField_Idempotent(t *testing.T) {
	inputs := []string{
		"Food Name", "food name", "FOOD_NAME", "  sub \t\n group ", "Group", "a b c", "x__y", "",
	}

	for _, input := range inputs {
		once := CanonicalField(input)
		twice := CanonicalField(once)
		if once != twice {
			t.Errorf("CanonicalField not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestRecordFromRow(t *testing.T) {
	row := Row{
		"food_name":       "Apple",
		"scientific_name": "Malus domestica",
		"group":           "Fruits",
		"sub_group":       "Pomes",
		"extra":           "ignored",
	}

	got := RecordFromRow(row)
	want := FoodRecord{
		FoodName:       "Apple",
		ScientificName: "Malus domestica",
		Group:          "Fruits",
		SubGroup:       "Pomes",
	}
	if got != want {
		t.Errorf("RecordFromRow() = %+v, want %+v", got, want)
	}
}

func TestRecordFromRow_MissingColumns(t *testing.T) {
	got := RecordFromRow(Row{"food_name": "Kale"})
	if got.FoodName != "Kale" || got.Group != "" || got.SubGroup != "" || got.ScientificName != "" {
		t.Errorf("RecordFromRow() = %+v, want only FoodName set", got)
	}
}

func TestFoodRecord_Validate(t *testing.T) {
	if err := (FoodRecord{FoodName: "Apple"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	for _, name := range []string{"", "   "} {
		err := (FoodRecord{FoodName: name, Group: "Fruits"}).Validate()
		if !errors.Is(err, ErrMissingKey) {
			t.Errorf("Validate() with FoodName %q = %v, want ErrMissingKey", name, err)
		}
	}
}

func TestFoodRecord_Attributes(t *testing.T) {
	rec := FoodRecord{FoodName: "Apple", Group: "Fruits"}
	attrs := rec.Attributes()

	if len(attrs) != len(Fields) {
		t.Fatalf("Attributes() has %d keys, want %d", len(attrs), len(Fields))
	}
	for _, f := range Fields {
		if _, ok := attrs[f]; !ok {
			t.Errorf("Attributes() missing %q", f)
		}
	}
	if attrs[FieldFoodName] != "Apple" || attrs[FieldGroup] != "Fruits" {
		t.Errorf("Attributes() = %v", attrs)
	}
}
