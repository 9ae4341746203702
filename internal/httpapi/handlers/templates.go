package handlers

import (
	"net/http"

	"recap/internal/domain"
	"recap/internal/httpkit"
	"recap/internal/pkg/errors"
)

type templateResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// ListTemplates returns the template registry, optionally filtered by
// category, grouped for picker UIs.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) error {
	if raw := r.URL.Query().Get("category"); raw != "" {
		cat := domain.Category(raw)
		if !cat.Valid() {
			return errors.Validationf("unknown category: %s", raw).WithField("field", "category")
		}
		tpls := domain.Templates(cat)
		out := make([]templateResponse, 0, len(tpls))
		for _, t := range tpls {
			out = append(out, toTemplateResponse(t))
		}
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{"templates": out})
		return nil
	}

	grouped := domain.TemplatesByCategory()
	out := make(map[string][]templateResponse, len(grouped))
	for cat, tpls := range grouped {
		list := make([]templateResponse, 0, len(tpls))
		for _, t := range tpls {
			list = append(list, toTemplateResponse(t))
		}
		out[string(cat)] = list
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"templates": out})
	return nil
}

func toTemplateResponse(t domain.Template) templateResponse {
	return templateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Category:    string(t.Category),
		Description: t.Description,
	}
}
