package service

import (
	"github.com/boddenberg/security-assessment-go/internal/catalog"
	"github.com/boddenberg/security-assessment-go/internal/domain"
)

// NoCompanyField is the single missing entry reported before the company
// profile exists.
const NoCompanyField = "Dados da Empresa"

const descriptorTextRunes = 50

// requiredCompanyFields are checked in this order; an empty string or a zero
// count is missing.
var requiredCompanyFields = []struct {
	label   string
	missing func(*domain.Company) bool
}{
	{"CNPJ", func(c *domain.Company) bool { return c.CNPJ == "" }},
	{"Razao Social", func(c *domain.Company) bool { return c.RazaoSocial == "" }},
	{"Nome do Usuario", func(c *domain.Company) bool { return c.NomeUsuario == "" }},
	{"Email Corporativo", func(c *domain.Company) bool { return c.EmailCorporativo == "" }},
	{"Telefone", func(c *domain.Company) bool { return c.Telefone == "" }},
	{"N de Colaboradores", func(c *domain.Company) bool { return c.NumeroColaboradores == 0 }},
}

// FilteredQuestions returns the catalog questions shown to company. No
// company means no questions.
func FilteredQuestions(questions []domain.Question, company *domain.Company) []domain.Question {
	if company == nil {
		return []domain.Question{}
	}
	return catalog.Filter(questions, company.TamanhoEmpresa)
}

// Progress is the rounded percentage of filtered required questions holding a
// non-blank answer. 0 without a company or without required questions.
func Progress(questions []domain.Question, company *domain.Company, answers map[string]domain.Answer) int {
	if company == nil {
		return 0
	}
	var required, answered int
	for _, q := range FilteredQuestions(questions, company) {
		if !q.Required {
			continue
		}
		required++
		if a, ok := answers[q.ID]; ok && a.Answered() {
			answered++
		}
	}
	if required == 0 {
		return 0
	}
	// round half up in integer arithmetic
	return (200*answered + required) / (2 * required)
}

// MissingFields lists what blocks submission: company fields first, then
// unanswered required questions in catalog order.
func MissingFields(questions []domain.Question, company *domain.Company, answers map[string]domain.Answer) []string {
	if company == nil {
		return []string{NoCompanyField}
	}

	missing := []string{}
	for _, f := range requiredCompanyFields {
		if f.missing(company) {
			missing = append(missing, f.label)
		}
	}
	for _, q := range FilteredQuestions(questions, company) {
		if !q.Required {
			continue
		}
		if a, ok := answers[q.ID]; ok && a.Answered() {
			continue
		}
		missing = append(missing, questionDescriptor(q))
	}
	return missing
}

func questionDescriptor(q domain.Question) string {
	text := []rune(q.Text)
	if len(text) > descriptorTextRunes {
		text = text[:descriptorTextRunes]
	}
	return q.Category + " - " + string(text) + "..."
}
