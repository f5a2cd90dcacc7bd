// Package domain defines the core entities of the security assessment.
// These models are independent of storage and transport and represent the
// canonical data structures used throughout the service.
package domain

import "time"

// ============================================================
// Company
// ============================================================

// CompanySize is the size bucket derived from the employee count.
type CompanySize string

const (
	SizeSmall  CompanySize = "pequena"
	SizeMedium CompanySize = "media"
	SizeLarge  CompanySize = "grande"
)

// Bucket boundaries (inclusive upper bounds).
const (
	SmallMaxEmployees  = 40
	MediumMaxEmployees = 100
)

// SizeFor maps an employee count to its bucket.
func SizeFor(employees int) CompanySize {
	switch {
	case employees <= SmallMaxEmployees:
		return SizeSmall
	case employees <= MediumMaxEmployees:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// Valid reports whether s is one of the three known buckets.
func (s CompanySize) Valid() bool {
	return s == SizeSmall || s == SizeMedium || s == SizeLarge
}

// ServerInfo describes a group of servers of the same version.
type ServerInfo struct {
	ID            string `json:"id,omitempty"`
	Versao        string `json:"versao"`
	Tipo          string `json:"tipo"`
	Quantidade    int    `json:"quantidade"`
	FisicoVirtual string `json:"fisicoVirtual"` // fisico, virtual
}

// Company is the organizational profile captured before the questionnaire.
type Company struct {
	// Identification
	CNPJ             string `json:"cnpj"`
	RazaoSocial      string `json:"razaoSocial"`
	Website          string `json:"website,omitempty"`
	NomeUsuario      string `json:"nomeUsuario"`
	EmailCorporativo string `json:"emailCorporativo"`
	Telefone         string `json:"telefone"`

	// Scale
	NumeroColaboradores      int         `json:"numeroColaboradores"`
	TamanhoEmpresa           CompanySize `json:"tamanhoEmpresa"`
	NumeroEscritoriosFiliais int         `json:"numeroEscritoriosFiliais"`
	NumeroLinksInternet      int         `json:"numeroLinksInternet"`
	NumeroLinksTransporte    int         `json:"numeroLinksTransporte"`
	NumeroVpnSiteToSite      int         `json:"numeroVpnSiteToSite"`
	NumeroComputadores       int         `json:"numeroComputadores"`
	NumeroServidores         int         `json:"numeroServidores"`
	ModeloOperacional        string      `json:"modeloOperacional"`

	// Servers
	ServidoresWindows           []ServerInfo `json:"servidoresWindows"`
	ServidoresLinux             []ServerInfo `json:"servidoresLinux"`
	ServidoresFisicosHypervisor int          `json:"servidoresFisicosHypervisor"`
	DetalhesHypervisor          string       `json:"detalhesHypervisor"`

	// Cloud
	TipoNuvem                string   `json:"tipoNuvem"`
	ProvedoresNuvem          []string `json:"provedoresNuvem"`
	SistemasNuvem            string   `json:"sistemasNuvem"`
	ModeloServicoNuvem       string   `json:"modeloServicoNuvem"`
	ResponsavelNuvem         string   `json:"responsavelNuvem"`
	IntegracaoNuvemOnPremise string   `json:"integracaoNuvemOnPremise"`
	BackupsNuvem             string   `json:"backupsNuvem"`
	ControleAcessoNuvem      string   `json:"controleAcessoNuvem"`
	DescricaoNuvem           string   `json:"descricaoNuvem"`
}

// Normalize recomputes derived fields. TamanhoEmpresa is always taken from
// the employee count, whatever the caller sent.
func (c *Company) Normalize() {
	c.TamanhoEmpresa = SizeFor(c.NumeroColaboradores)
	if c.ServidoresWindows == nil {
		c.ServidoresWindows = []ServerInfo{}
	}
	if c.ServidoresLinux == nil {
		c.ServidoresLinux = []ServerInfo{}
	}
	if c.ProvedoresNuvem == nil {
		c.ProvedoresNuvem = []string{}
	}
}

// CloudProvider is an entry of the cloud provider picker.
type CloudProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CloudProviders lists the providers offered by the company form.
var CloudProviders = []CloudProvider{
	{ID: "aws", Name: "Amazon Web Services (AWS)"},
	{ID: "azure", Name: "Microsoft Azure"},
	{ID: "gcp", Name: "Google Cloud Platform"},
	{ID: "oracle", Name: "Oracle Cloud"},
	{ID: "ibm", Name: "IBM Cloud"},
	{ID: "alibaba", Name: "Alibaba Cloud"},
	{ID: "digitalocean", Name: "DigitalOcean"},
	{ID: "none", Name: "Não Possui Nuvem"},
}

// ============================================================
// Assessment
// ============================================================

// AssessmentStatus is the lifecycle state of an assessment.
type AssessmentStatus string

const (
	StatusDraft     AssessmentStatus = "draft"
	StatusCompleted AssessmentStatus = "completed"
)

// Assessment is one questionnaire run owned by a user.
type Assessment struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Company     Company          `json:"company"`
	Status      AssessmentStatus `json:"status"`
	Progress    int              `json:"progress"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Completed reports whether the assessment was submitted.
func (a *Assessment) Completed() bool {
	return a != nil && a.Status == StatusCompleted
}

// Snapshot is the persisted form of a session: the assessment, its answers
// keyed by question id, and the company.
type Snapshot struct {
	Assessment *Assessment       `json:"assessment"`
	Answers    map[string]Answer `json:"answers"`
	Company    *Company          `json:"company"`
}

// SubmitResult reports the outcome of a submission. An incomplete
// assessment is a result, not an error.
type SubmitResult struct {
	Completed  bool        `json:"completed"`
	Missing    []string    `json:"missing,omitempty"`
	Assessment *Assessment `json:"assessment,omitempty"`
}

// AssessmentState is the read model returned to clients.
type AssessmentState struct {
	Assessment    *Assessment       `json:"assessment"`
	Company       *Company          `json:"company"`
	Answers       map[string]Answer `json:"answers"`
	Progress      int               `json:"progress"`
	MissingFields []string          `json:"missingFields"`
}

// IndexEntry is one row of the admin assessment listing.
type IndexEntry struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	CompanyName string           `json:"companyName"`
	CNPJ        string           `json:"cnpj"`
	Status      AssessmentStatus `json:"status"`
	Progress    int              `json:"progress"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// CompletedEvent is published when an assessment is submitted.
type CompletedEvent struct {
	Event        string    `json:"event"`
	AssessmentID string    `json:"assessmentId"`
	UserID       string    `json:"userId"`
	CNPJ         string    `json:"cnpj"`
	CompanyName  string    `json:"companyName"`
	CompanySize  string    `json:"companySize"`
	CompletedAt  time.Time `json:"completedAt"`
}

// EventAssessmentCompleted is the event name of CompletedEvent.
const EventAssessmentCompleted = "assessment.completed"
