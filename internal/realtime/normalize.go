package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sos_unifio/backend/internal/models"
)

var ErrMissingID = errors.New("inbound occurrence without id")

// InboundOccurrence is a nova_ocorrencia payload after alias resolution.
type InboundOccurrence struct {
	Occurrence models.Occurrence
	Attempted  []string
}

// Decode parses a raw JSON payload and normalizes it.
func Decode(data []byte) (InboundOccurrence, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return InboundOccurrence{}, fmt.Errorf("decode payload: %w", err)
	}
	return Normalize(raw)
}

// Normalize maps the field aliases used by the backend tables and the web
// client onto a single occurrence shape. The first alias present wins.
func Normalize(raw map[string]any) (InboundOccurrence, error) {
	if inner, ok := raw["ocorrencia"].(map[string]any); ok {
		merged := make(map[string]any, len(raw)+len(inner))
		for k, v := range raw {
			merged[k] = v
		}
		for k, v := range inner {
			merged[k] = v
		}
		raw = merged
	}

	id := stringField(raw, "a02_id", "id")
	if id == "" {
		return InboundOccurrence{}, ErrMissingID
	}

	o := models.Occurrence{
		ID:          id,
		Description: stringField(raw, "a02_descricao", "descricao", "description"),
		Symptoms:    symptomsField(raw, "sintomas", "a02_sintomas", "symptoms"),
		PeopleCount: models.PeopleCount(stringField(raw, "a02_quantidade_pessoas", "quantidadePessoas", "people_count")),
		Priority:    normalizePriority(stringField(raw, "a02_prioridade", "prioridade", "priority")),
		Type:        normalizeType(stringField(raw, "a02_classificacao", "classificacao", "type")),
		Status:      models.Status(strings.ToLower(stringField(raw, "a02_status", "status"))),
	}

	o.RequesterName = stringField(raw, "a01_nome", "requester_name")
	o.RequesterID = stringField(raw, "a01_id", "requester_id")
	if s, ok := raw["solicitante"]; ok {
		switch v := s.(type) {
		case string:
			if o.RequesterName == "" {
				o.RequesterName = v
			}
		case map[string]any:
			if o.RequesterName == "" {
				o.RequesterName = stringField(v, "nome", "a01_nome", "name")
			}
			if o.RequesterID == "" {
				o.RequesterID = stringField(v, "id", "a01_id")
			}
			if o.RequesterRole == "" {
				o.RequesterRole = stringField(v, "tipo", "a01_tipo", "role")
			}
		}
	}
	if o.RequesterRole == "" {
		o.RequesterRole = stringField(raw, "a01_tipo", "requester_role")
	}

	o.LocationName = stringField(raw, "a03_nome", "location_name")
	o.LocationID = stringField(raw, "a03_id", "location_id")
	if l, ok := raw["local"]; ok {
		switch v := l.(type) {
		case string:
			if o.LocationName == "" {
				o.LocationName = v
			}
		case map[string]any:
			if o.LocationName == "" {
				o.LocationName = stringField(v, "nome", "a03_nome", "name")
			}
			if o.LocationID == "" {
				o.LocationID = stringField(v, "id", "a03_id")
			}
		}
	}
	o.LocationDetail = stringField(raw, "a02_local_detalhe", "localDetalhe", "location_detail")

	if opened := stringField(raw, "a02_data_abertura", "dataAbertura", "created_at"); opened != "" {
		t, err := parseTime(opened)
		if err != nil {
			return InboundOccurrence{}, fmt.Errorf("occurrence %s: %w", id, err)
		}
		o.OpenedAt = t
	}

	return InboundOccurrence{
		Occurrence: o,
		Attempted:  stringsField(raw, "attemptedRespondersIds", "attempted_responders_ids"),
	}, nil
}

func lookup(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw map[string]any, keys ...string) string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return ""
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func stringsField(raw map[string]any, keys ...string) []string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return nil
	}
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func symptomsField(raw map[string]any, keys ...string) []models.SymptomTag {
	items := stringsField(raw, keys...)
	if len(items) == 0 {
		return nil
	}
	out := make([]models.SymptomTag, 0, len(items))
	for _, s := range items {
		out = append(out, models.SymptomTag(strings.ToLower(s)))
	}
	return out
}

var accents = strings.NewReplacer("á", "a", "â", "a", "ã", "a", "é", "e", "ê", "e", "í", "i", "ó", "o", "ô", "o", "ú", "u", "ç", "c")

func fold(s string) string {
	return accents.Replace(strings.ToLower(strings.TrimSpace(s)))
}

func normalizePriority(s string) models.Priority {
	switch fold(s) {
	case "baixa":
		return models.PriorityBaixa
	case "media":
		return models.PriorityMedia
	case "alta":
		return models.PriorityAlta
	case "critica":
		return models.PriorityCritica
	}
	return ""
}

func normalizeType(s string) models.OccurrenceType {
	switch fold(s) {
	case "urgencia":
		return models.TypeUrgencia
	case "emergencia":
		return models.TypeEmergencia
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
