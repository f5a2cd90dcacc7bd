package domain

// ============================================================
// Company registry (CNPJ lookup)
// ============================================================

// RegistryAddress is the registered address of a company.
type RegistryAddress struct {
	Logradouro  string `json:"logradouro"`
	Numero      string `json:"numero"`
	Complemento string `json:"complemento,omitempty"`
	Bairro      string `json:"bairro"`
	Municipio   string `json:"municipio"`
	UF          string `json:"uf"`
	CEP         string `json:"cep"`
}

// RegistryRecord is the public registry data for a CNPJ.
// Only LegalName is used to pre-fill the company form.
type RegistryRecord struct {
	CNPJ               string          `json:"cnpj"`
	FormattedCNPJ      string          `json:"cnpjFormatado,omitempty"`
	LegalName          string          `json:"razaoSocial"`
	TradeName          string          `json:"nomeFantasia,omitempty"`
	ActivityStartDate  string          `json:"dataInicioAtividade,omitempty"`
	RegistrationStatus string          `json:"situacaoCadastral,omitempty"`
	MainActivity       string          `json:"cnaeFiscalDescricao,omitempty"`
	Address            RegistryAddress `json:"endereco"`
	Employees          *int            `json:"qtdFuncionarios,omitempty"`
}
