package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	reportTitle        = "ASSESSMENT DE SEGURANCA DA INFORMACAO"
	reportCompany      = "DADOS DA EMPRESA"
	reportAnswers      = "RESPOSTAS DO ASSESSMENT"
	notInformed        = "Nao informado"
	notAnswered        = "Nao respondida"
	reportTimeLayout   = "02/01/2006, 15:04:05"
	reportBannerWidth  = 50
	reportSectionWidth = 30
)

var upperPTBR = cases.Upper(language.BrazilianPortuguese)

// ReportFileName is the download name of an exported report.
func ReportFileName(assessmentID string) string {
	return "assessment-" + assessmentID + ".txt"
}

// ExportText renders the fixed-format text report. It returns "" when there
// is no assessment or no company. Only generatedAt varies between calls with
// the same inputs.
func ExportText(
	assessment *domain.Assessment,
	company *domain.Company,
	answers map[string]domain.Answer,
	questions []domain.Question,
	generatedAt time.Time,
) string {
	if assessment == nil || company == nil {
		return ""
	}

	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	field := func(label, value string) {
		if value == "" {
			value = notInformed
		}
		line(label + ": " + value)
	}
	count := func(label string, n int) {
		field(label, strconv.Itoa(n))
	}

	line(reportTitle)
	line(strings.Repeat("=", reportBannerWidth))
	line("")

	line(reportCompany)
	line(strings.Repeat("-", reportSectionWidth))
	field("CNPJ", company.CNPJ)
	field("Razao Social", company.RazaoSocial)
	field("Website", company.Website)
	field("Nome do Usuario", company.NomeUsuario)
	field("Email Corporativo", company.EmailCorporativo)
	field("Telefone", company.Telefone)
	count("N de Colaboradores", company.NumeroColaboradores)
	field("Tamanho da Empresa", upperPTBR.String(string(company.TamanhoEmpresa)))
	count("Escritorios/Filiais", company.NumeroEscritoriosFiliais)
	count("Links de Internet", company.NumeroLinksInternet)
	count("Links de Transporte", company.NumeroLinksTransporte)
	count("VPN Site to Site", company.NumeroVpnSiteToSite)
	count("Computadores", company.NumeroComputadores)
	count("Servidores", company.NumeroServidores)
	field("Modelo Operacional", company.ModeloOperacional)
	field("Tipo de Nuvem", company.TipoNuvem)
	field("Provedores de Nuvem", strings.Join(company.ProvedoresNuvem, ", "))
	line("")

	line(reportAnswers)
	line(strings.Repeat("-", reportSectionWidth))
	line("")

	for _, q := range FilteredQuestions(questions, company) {
		line("[" + q.Category + "] " + q.Text)
		a, ok := answers[q.ID]
		if ok {
			line("Resposta: " + a.Value.String())
		} else {
			line("Resposta: " + notAnswered)
		}
		if ok && a.MaturityLevel != nil {
			line("Nivel de Maturidade: " + a.MaturityLevel.ReportLabel())
		}
		line("")
	}

	line("")
	line(strings.Repeat("=", reportBannerWidth))
	line("Assessment gerado em: " + generatedAt.Format(reportTimeLayout))
	line("ID do Assessment: " + assessment.ID)

	return b.String()
}
