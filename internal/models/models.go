package models

import "time"

type OccurrenceType string

const (
	TypeUrgencia   OccurrenceType = "urgencia"
	TypeEmergencia OccurrenceType = "emergencia"
)

type Priority string

const (
	PriorityBaixa   Priority = "baixa"
	PriorityMedia   Priority = "media"
	PriorityAlta    Priority = "alta"
	PriorityCritica Priority = "critica"
)

type PeopleCount string

const (
	PeopleOne       PeopleCount = "1"
	PeopleTwoThree  PeopleCount = "2-3"
	PeopleMoreThree PeopleCount = "3+"
)

func (p PeopleCount) Valid() bool {
	switch p {
	case PeopleOne, PeopleTwoThree, PeopleMoreThree:
		return true
	}
	return false
}

type SymptomTag string

const (
	SymptomDesmaio             SymptomTag = "desmaio"
	SymptomDorPeito            SymptomTag = "dor_peito"
	SymptomDificuldadeRespirar SymptomTag = "dificuldade_respirar"
	SymptomConvulsao           SymptomTag = "convulsao"
	SymptomSangramentoIntenso  SymptomTag = "sangramento_intenso"
	SymptomReacaoAlergicaGrave SymptomTag = "reacao_alergica_grave"
	SymptomQueimaduraGrave     SymptomTag = "queimadura_grave"
	SymptomTraumaCabeca        SymptomTag = "trauma_cabeca"
	SymptomFebreAlta           SymptomTag = "febre_alta"
	SymptomNauseaVomito        SymptomTag = "nausea_vomito"
	SymptomDorCabeca           SymptomTag = "dor_cabeca"
	SymptomTontura             SymptomTag = "tontura"
	SymptomDorAbdominal        SymptomTag = "dor_abdominal"
	SymptomCorteLeve           SymptomTag = "corte_leve"
	SymptomEntorse             SymptomTag = "entorse"
	SymptomCriseAnsiedade      SymptomTag = "crise_ansiedade"
	SymptomOutro               SymptomTag = "outro"
)

// KnownSymptoms lists every tag the intake form offers.
var KnownSymptoms = []SymptomTag{
	SymptomDesmaio, SymptomDorPeito, SymptomDificuldadeRespirar, SymptomConvulsao,
	SymptomSangramentoIntenso, SymptomReacaoAlergicaGrave, SymptomQueimaduraGrave,
	SymptomTraumaCabeca, SymptomFebreAlta, SymptomNauseaVomito, SymptomDorCabeca,
	SymptomTontura, SymptomDorAbdominal, SymptomCorteLeve, SymptomEntorse,
	SymptomCriseAnsiedade, SymptomOutro,
}

type Status string

const (
	StatusAberto        Status = "aberto"
	StatusTriagem       Status = "triagem"
	StatusEmAtendimento Status = "em_atendimento"
	StatusACaminho      Status = "a_caminho"
	StatusNoLocal       Status = "no_local"
	StatusConcluido     Status = "concluido"
	StatusCancelado     Status = "cancelado"
)

var statusRank = map[Status]int{
	StatusAberto:        0,
	StatusTriagem:       1,
	StatusEmAtendimento: 2,
	StatusACaminho:      3,
	StatusNoLocal:       4,
	StatusConcluido:     5,
	StatusCancelado:     5,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusConcluido || s == StatusCancelado
}

// Before reports whether s comes strictly earlier than other in the lifecycle.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

type Occurrence struct {
	ID             string         `json:"id"`
	RequesterID    string         `json:"requester_id"`
	RequesterName  string         `json:"requester_name"`
	RequesterRole  string         `json:"requester_role"`
	Description    string         `json:"description"`
	Symptoms       []SymptomTag   `json:"symptoms"`
	PeopleCount    PeopleCount    `json:"people_count"`
	LocationID     string         `json:"location_id"`
	LocationName   string         `json:"location_name"`
	LocationDetail string         `json:"location_detail"`
	Type           OccurrenceType `json:"type"`
	Priority       Priority       `json:"priority"`
	Status         Status         `json:"status"`
	AssignedTo     string         `json:"assigned_to,omitempty"`
	// AttemptedResponderIDs mirrors the current dispatch lineage so it
	// survives a restart.
	AttemptedResponderIDs []string  `json:"attempted_responders_ids,omitempty"`
	OpenedAt              time.Time `json:"opened_at"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with o.
func (o Occurrence) Clone() Occurrence {
	if o.Symptoms != nil {
		o.Symptoms = append([]SymptomTag(nil), o.Symptoms...)
	}
	if o.AttemptedResponderIDs != nil {
		o.AttemptedResponderIDs = append([]string(nil), o.AttemptedResponderIDs...)
	}
	return o
}

type CallState string

const (
	CallPending   CallState = "pending"
	CallAccepted  CallState = "accepted"
	CallRejected  CallState = "rejected"
	CallExpired   CallState = "expired"
	CallCancelled CallState = "cancelled"
)

type RedirectReason string

const (
	ReasonNone       RedirectReason = ""
	ReasonRejected   RedirectReason = "rejected"
	ReasonNoResponse RedirectReason = "no_response"
)

type IncomingCall struct {
	ID                    string         `json:"id"`
	OccurrenceID          string         `json:"occurrence_id"`
	ResponderID           string         `json:"responder_id"`
	State                 CallState      `json:"state"`
	Reason                RedirectReason `json:"reason,omitempty"`
	AttemptedResponderIDs []string       `json:"attempted_responders_ids"`
	CreatedAt             time.Time      `json:"created_at"`
	ExpiresAt             time.Time      `json:"expires_at"`
}

func (c IncomingCall) Clone() IncomingCall {
	c.AttemptedResponderIDs = append([]string{}, c.AttemptedResponderIDs...)
	return c
}

type Role string

const (
	RoleSocorrista  Role = "socorrista"
	RoleColaborador Role = "colaborador"
	RoleProfessor   Role = "professor"
	RoleAluno       Role = "aluno"
	RoleAdmin       Role = "admin"
)

func (r Role) CanRespond() bool {
	return r == RoleSocorrista || r == RoleColaborador || r == RoleProfessor
}

type Responder struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Role        Role     `json:"role" yaml:"role"`
	Available   bool     `json:"available" yaml:"available"`
	DeviceToken string   `json:"-" yaml:"device_token"`
	Lat         *float64 `json:"lat,omitempty" yaml:"lat"`
	Lon         *float64 `json:"lon,omitempty" yaml:"lon"`
	CurrentLoad int      `json:"current_load" yaml:"-"`
}

type Location struct {
	ID    string   `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Block string   `json:"block" yaml:"block"`
	Lat   *float64 `json:"lat,omitempty" yaml:"lat"`
	Lon   *float64 `json:"lon,omitempty" yaml:"lon"`
}
