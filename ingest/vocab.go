package ingest

// Controlled vocabularies for jurisdiction and topic tagging. Keys are the
// canonical tags stored on chunks and accepted as query filters; values are
// the surface forms matched in document text (Portuguese and English, since
// the corpus mixes both).

const Unknown = "unknown"

var countryPatterns = map[string][]string{
	"pt": {"portugal", "português", "portuguesa", "lisboa"},
	"es": {"espanha", "spain", "espanhol", "madrid"},
	"gb": {"reino unido", "united kingdom", "inglaterra", "england", "great britain", "londres", "london"},
	"ie": {"irlanda", "ireland", "dublin"},
	"ch": {"suíça", "suica", "switzerland", "swiss", "zurique", "zurich"},
	"mt": {"malta"},
	"cy": {"chipre", "cyprus"},
	"us": {"estados unidos", "united states", "eua", "usa", "america do norte"},
	"uy": {"uruguai", "uruguay", "montevideu"},
	"pa": {"panamá", "panama"},
	"py": {"paraguai", "paraguay", "assunção"},
	"sg": {"singapura", "singapore"},
	"hk": {"hong kong"},
	"ae": {"emirados", "dubai", "abu dhabi", "united arab emirates"},
	"br": {"brasil", "brazil", "brasileiro", "brasileira"},
}

// Aliases accepted in query filters in addition to the ISO-2 codes above.
var countryAliases = map[string]string{
	"portugal":       "pt",
	"espanha":        "es",
	"spain":          "es",
	"reino unido":    "gb",
	"uk":             "gb",
	"irlanda":        "ie",
	"ireland":        "ie",
	"suica":          "ch",
	"switzerland":    "ch",
	"malta":          "mt",
	"chipre":         "cy",
	"cyprus":         "cy",
	"estados unidos": "us",
	"usa":            "us",
	"eua":            "us",
	"uruguai":        "uy",
	"uruguay":        "uy",
	"panama":         "pa",
	"paraguai":       "py",
	"paraguay":       "py",
	"singapura":      "sg",
	"singapore":      "sg",
	"hong kong":      "hk",
	"emirados":       "ae",
	"uae":            "ae",
	"brasil":         "br",
	"brazil":         "br",
}

var topicPatterns = map[string][]string{
	"residencia_fiscal": {"residência fiscal", "residencia fiscal", "tax residence", "tax residency", "residente fiscal"},
	"tributacao_renda":  {"imposto de renda", "income tax", "irpf", "irpj"},
	"ganhos_capital":    {"ganhos de capital", "capital gains", "exit tax"},
	"dividendos":        {"dividendos", "dividends", "juros", "royalties"},
	"tratados":          {"tratado", "treaty", "bitributação", "bitributacao", "acordo de dupla"},
	"compliance":        {"compliance", "declaração", "declaracao", "fatca", "crs"},
	"planejamento":      {"planejamento", "planning", "otimização", "otimizacao"},
	"imigracao":         {"imigração", "imigracao", "immigration", "visto", "golden visa"},
	"offshore":          {"offshore", "holding", "paraíso fiscal", "paraiso fiscal"},
	"cripto":            {"cripto", "crypto", "bitcoin", "nft", "defi"},
}
