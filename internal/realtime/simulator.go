package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/utils"
)

var simulatedCases = []struct {
	description string
	symptoms    []models.SymptomTag
	people      models.PeopleCount
}{
	{"Pessoa desmaiou no corredor", []models.SymptomTag{models.SymptomDesmaio}, models.PeopleOne},
	{"Queixa de dor no peito após subir escadas", []models.SymptomTag{models.SymptomDorPeito, models.SymptomTontura}, models.PeopleOne},
	{"Aluno com febre e vômito", []models.SymptomTag{models.SymptomFebreAlta, models.SymptomNauseaVomito}, models.PeopleOne},
	{"Torção durante o treino", []models.SymptomTag{models.SymptomEntorse}, models.PeopleOne},
	{"Corte na mão no laboratório", []models.SymptomTag{models.SymptomCorteLeve}, models.PeopleOne},
	{"Crise de ansiedade antes da prova", []models.SymptomTag{models.SymptomCriseAnsiedade, models.SymptomTontura, models.SymptomDorCabeca}, models.PeopleOne},
	{"Intoxicação alimentar na cantina", []models.SymptomTag{models.SymptomNauseaVomito, models.SymptomDorAbdominal}, models.PeopleTwoThree},
	{"Acidente com vários feridos no estacionamento", []models.SymptomTag{models.SymptomSangramentoIntenso, models.SymptomTraumaCabeca}, models.PeopleMoreThree},
}

var simulatedRequesters = []string{"Ana Souza", "Bruno Lima", "Carla Mendes", "Diego Rocha"}

// Simulator produces nova_ocorrencia events locally, standing in for the
// backend feed during drills and demos.
type Simulator struct {
	Submitter Submitter
	Locations []models.Location
	Interval  time.Duration
	Logger    zerolog.Logger
	NewID     func() string
}

func NewSimulator(sub Submitter, interval time.Duration, logger zerolog.Logger) *Simulator {
	return &Simulator{
		Submitter: sub,
		Interval:  interval,
		Logger:    logger,
		NewID:     uuid.NewString,
	}
}

// Generate builds an inbound occurrence. Its content is derived from the id,
// so the same id always yields the same case.
func (s *Simulator) Generate(id string) InboundOccurrence {
	c := simulatedCases[utils.Pick(id, "case", len(simulatedCases))]

	o := models.Occurrence{
		ID:            id,
		RequesterName: simulatedRequesters[utils.Pick(id, "requester", len(simulatedRequesters))],
		RequesterRole: string(models.RoleAluno),
		Description:   c.description,
		Symptoms:      append([]models.SymptomTag(nil), c.symptoms...),
		PeopleCount:   c.people,
		Status:        models.StatusAberto,
	}
	if len(s.Locations) > 0 {
		loc := s.Locations[utils.Pick(id, "location", len(s.Locations))]
		o.LocationID = loc.ID
		o.LocationName = loc.Name
	}
	return InboundOccurrence{Occurrence: o}
}

// Fire generates one occurrence and submits it.
func (s *Simulator) Fire(ctx context.Context) (models.Occurrence, *models.IncomingCall, error) {
	return Ingest(ctx, s.Submitter, s.Logger, "simulator", s.Generate("sim-"+s.NewID()))
}

// Run fires an occurrence every Interval until ctx is done. A zero interval
// disables the loop.
func (s *Simulator) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, _ = s.Fire(ctx)
		}
	}
}
