package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMetadataCountry(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		country string
	}{
		{"portugal", "A residência fiscal em Portugal exige 183 dias de permanência.", "pt"},
		{"brasil", "O Brasil tributa rendimentos mundiais de residentes.", "br"},
		{"english", "Switzerland offers lump-sum taxation for new residents.", "ch"},
		{"dominant mention", "Portugal, Portugal e Portugal têm acordo com o Brasil.", "pt"},
		{"no match", "Texto genérico sem menção geográfica.", Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			det := DetectMetadata(tc.text)
			assert.Equal(t, tc.country, det.Country)
		})
	}
}

func TestDetectMetadataTopic(t *testing.T) {
	det := DetectMetadata("O tratado contra a bitributação entre Portugal e Brasil cobre dividendos.")
	assert.Equal(t, "tratados", det.Topic)

	det = DetectMetadata("Ganhos de capital e exit tax na mudança de residência.")
	assert.Equal(t, "ganhos_capital", det.Topic)

	det = DetectMetadata("Nada tributário aqui.")
	assert.Equal(t, Unknown, det.Topic)
}

func TestDetectMetadataConfidence(t *testing.T) {
	// Single unambiguous jurisdiction mention scores full confidence.
	det := DetectMetadata("Regras de imposto em Malta.")
	assert.Equal(t, "mt", det.Country)
	assert.InDelta(t, 1.0, det.Confidence, 0.001)

	// Mixed mentions dilute confidence.
	det = DetectMetadata("Portugal e Espanha disputam o contribuinte. Portugal vence.")
	assert.Equal(t, "pt", det.Country)
	assert.Less(t, det.Confidence, 1.0)
	assert.Greater(t, det.Confidence, 0.5)

	// No match carries zero confidence, never an error.
	det = DetectMetadata("sem conteúdo")
	assert.Equal(t, Unknown, det.Country)
	assert.Zero(t, det.Confidence)
}

func TestNormalizeCountry(t *testing.T) {
	cases := []struct {
		in   string
		code string
		ok   bool
	}{
		{"pt", "pt", true},
		{"PT", "pt", true},
		{" Portugal ", "pt", true},
		{"brazil", "br", true},
		{"uk", "gb", true},
		{"singapore", "sg", true},
		{"atlantis", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		code, ok := NormalizeCountry(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.code, code, tc.in)
	}
}

func TestLastPageMarker(t *testing.T) {
	assert.Equal(t, 0, lastPageMarker("sem marcador"))
	assert.Equal(t, 7, lastPageMarker("[PAGE 7]\ntexto"))
	assert.Equal(t, 12, lastPageMarker("[PAGE 7]\ntexto\n[PAGE 12]\nmais"))
}

func TestSectionOf(t *testing.T) {
	assert.Equal(t, "Residência Fiscal", sectionOf("## Residência Fiscal\ncorpo"))
	assert.Equal(t, "Tributação de dividendos", sectionOf("3. Tributação de dividendos\ncorpo"))
	assert.Equal(t, "", sectionOf("parágrafo sem título"))
}
