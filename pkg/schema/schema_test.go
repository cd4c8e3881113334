package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/effective-security/freetable/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reservation is a test input with nested and optional fields
type Reservation struct {
	RestaurantID int      `json:"restaurantId" jsonschema:"description=The ID of the restaurant"`
	Email        string   `json:"email" jsonschema:"format=email,description=Contact email"`
	Notes        string   `json:"notes,omitempty" jsonschema:"description=Optional notes"`
	Guest        *Guest   `json:"guest,omitempty"`
	Extras       []*Guest `json:"extras,omitempty"`
}

// Guest is a nested test type
type Guest struct {
	Name string `json:"name"`
}

type empty struct{}

func TestSchema(t *testing.T) {
	t.Parallel()

	t.Run("Reservation", func(t *testing.T) {
		t.Parallel()
		s, err := schema.New(reflect.TypeOf(Reservation{}))
		require.NoError(t, err)

		exp := `{
	"type": "object",
	"properties": {
		"restaurantId": {"type": "integer", "description": "The ID of the restaurant"},
		"email": {"type": "string", "format": "email", "description": "Contact email"},
		"notes": {"type": "string", "description": "Optional notes"},
		"guest": {"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]},
		"extras": {"type": "array", "items": {"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}}
	},
	"required": ["restaurantId", "email"]
}`
		assert.JSONEq(t, exp, s.String())
		assert.Equal(t, []string{"restaurantId", "email"}, s.RequiredProperties())
		assert.Equal(t, []string{"restaurantId", "email", "notes", "guest", "extras"}, s.PropertyNames())
	})

	t.Run("Pointer", func(t *testing.T) {
		t.Parallel()
		s1, err := schema.New(reflect.TypeOf(&Reservation{}))
		require.NoError(t, err)
		s2, err := schema.New(reflect.TypeOf(Reservation{}))
		require.NoError(t, err)
		assert.Same(t, s1, s2)
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		s, err := schema.New(reflect.TypeOf(empty{}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"object","properties":{}}`, s.String())
		assert.Empty(t, s.RequiredProperties())
		assert.Empty(t, s.PropertyNames())
	})

	t.Run("Unsupported", func(t *testing.T) {
		t.Parallel()
		_, err := schema.New(reflect.TypeOf("string"))
		assert.EqualError(t, err, "unsupported type string: must be a struct")

		_, err = schema.New(nil)
		assert.EqualError(t, err, "type is required")
	})
}

func TestSchemaFromAny(t *testing.T) {
	t.Parallel()

	sc, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type": "string",
			},
		},
		"required": []string{"query"},
	})
	require.NoError(t, err)

	js, err := json.Marshal(sc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`, string(js))
	assert.Equal(t, 1, sc.Properties.Len())
}
