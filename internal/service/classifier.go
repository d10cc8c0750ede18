package service

import "github.com/sos_unifio/backend/internal/models"

// CriticalSymptoms force an occurrence into emergencia/critica regardless of
// how many people are affected.
var CriticalSymptoms = map[models.SymptomTag]bool{
	models.SymptomDesmaio:             true,
	models.SymptomDorPeito:            true,
	models.SymptomDificuldadeRespirar: true,
	models.SymptomConvulsao:           true,
	models.SymptomSangramentoIntenso:  true,
	models.SymptomReacaoAlergicaGrave: true,
}

// Classify maps the reported symptoms and number of affected people to an
// occurrence type and priority. Rules are evaluated in order; the first match
// wins. Repeated tags count once.
func Classify(symptoms []models.SymptomTag, people models.PeopleCount) (models.OccurrenceType, models.Priority) {
	distinct := map[models.SymptomTag]bool{}
	critical := false
	for _, s := range symptoms {
		distinct[s] = true
		if CriticalSymptoms[s] {
			critical = true
		}
	}

	switch {
	case critical || people == models.PeopleMoreThree:
		return models.TypeEmergencia, models.PriorityCritica
	case people == models.PeopleTwoThree || len(distinct) >= 3:
		return models.TypeUrgencia, models.PriorityAlta
	case len(distinct) >= 2:
		return models.TypeUrgencia, models.PriorityMedia
	default:
		return models.TypeUrgencia, models.PriorityBaixa
	}
}
