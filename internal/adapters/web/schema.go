package web

import (
	"net/http"
	"sync"

	"lab-booking/internal/app"

	"github.com/invopop/jsonschema"
)

var (
	cartItemSchemaOnce sync.Once
	cartItemSchemaDoc  *jsonschema.Schema
)

func generateCartItemSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v app.AddCartItemRequest
	s := reflector.Reflect(v)
	s.Title = "Cart item"
	return s
}

// cartItemSchema handles GET /api/schemas/cart-item and publishes the JSON
// schema of the add-to-cart payload.
func (h *Handler) cartItemSchema(w http.ResponseWriter, r *http.Request) {
	cartItemSchemaOnce.Do(func() {
		cartItemSchemaDoc = generateCartItemSchema()
	})
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, cartItemSchemaDoc)
}
