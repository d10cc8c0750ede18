package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/realtime"
	"github.com/sos_unifio/backend/internal/service"
)

// Client talks to the SOS UNIFIO REST backend that owns the occurrence tables.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type occurrenceBody struct {
	ID                string   `json:"id"`
	SolicitanteID     string   `json:"solicitanteId,omitempty"`
	Solicitante       string   `json:"solicitante,omitempty"`
	TipoSolicitante   string   `json:"tipoSolicitante,omitempty"`
	Descricao         string   `json:"descricao"`
	Sintomas          []string `json:"sintomas"`
	QuantidadePessoas string   `json:"quantidadePessoas"`
	LocalID           string   `json:"localId,omitempty"`
	Local             string   `json:"local,omitempty"`
	LocalDetalhe      string   `json:"localDetalhe,omitempty"`
	Classificacao     string   `json:"classificacao"`
	Prioridade        string   `json:"prioridade"`
	Status            string   `json:"status"`
	ResponsavelID     string   `json:"responsavelId,omitempty"`
	DataAbertura      string   `json:"dataAbertura"`
	AtualizadoEm      string   `json:"atualizadoEm"`
}

func toBody(o models.Occurrence) occurrenceBody {
	symptoms := make([]string, 0, len(o.Symptoms))
	for _, s := range o.Symptoms {
		symptoms = append(symptoms, string(s))
	}
	return occurrenceBody{
		ID:                o.ID,
		SolicitanteID:     o.RequesterID,
		Solicitante:       o.RequesterName,
		TipoSolicitante:   o.RequesterRole,
		Descricao:         o.Description,
		Sintomas:          symptoms,
		QuantidadePessoas: string(o.PeopleCount),
		LocalID:           o.LocationID,
		Local:             o.LocationName,
		LocalDetalhe:      o.LocationDetail,
		Classificacao:     string(o.Type),
		Prioridade:        string(o.Priority),
		Status:            string(o.Status),
		ResponsavelID:     o.AssignedTo,
		DataAbertura:      o.OpenedAt.UTC().Format(time.RFC3339),
		AtualizadoEm:      o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SaveOccurrence posts a snapshot; the backend upserts by id.
func (c *Client) SaveOccurrence(ctx context.Context, o models.Occurrence) error {
	return c.do(ctx, http.MethodPost, "/ocorrencias", toBody(o), nil)
}

// GetOccurrence fetches one occurrence and normalizes its table aliases.
func (c *Client) GetOccurrence(ctx context.Context, id string) (models.Occurrence, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, "/ocorrencias/"+url.PathEscape(id), nil, &raw); err != nil {
		return models.Occurrence{}, err
	}
	in, err := realtime.Normalize(raw)
	if err != nil {
		return models.Occurrence{}, err
	}
	return in.Occurrence, nil
}

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type locationBody struct {
	ID    flexID   `json:"id"`
	Nome  string   `json:"nome"`
	Bloco string   `json:"bloco"`
	Lat   *float64 `json:"latitude"`
	Lon   *float64 `json:"longitude"`
}

func (c *Client) ListLocations(ctx context.Context) ([]models.Location, error) {
	var body []locationBody
	if err := c.do(ctx, http.MethodGet, "/ocorrencias/locais", nil, &body); err != nil {
		return nil, err
	}
	out := make([]models.Location, 0, len(body))
	for _, l := range body {
		out = append(out, models.Location{ID: string(l.ID), Name: l.Nome, Block: l.Bloco, Lat: l.Lat, Lon: l.Lon})
	}
	return out, nil
}

// DashboardSummary returns the backend's resumoDash document unchanged.
func (c *Client) DashboardSummary(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/ocorrencias/resumoDash", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", service.ErrNotFound, statusErr)
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
