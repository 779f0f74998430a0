package bioheader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAccessionsSwissProt(t *testing.T) {
	accs := ExtractAccessions(">sp|P12345|PROT_HUMAN")
	assert.Equal(t, []string{"P12345", "PROT_HUMAN"}, accs)
}

func TestExtractAccessionsNCBIWithGI(t *testing.T) {
	accs := ExtractAccessions(">gi|123456|ref|NP_123456.1| protein [Homo sapiens]")
	assert.Contains(t, accs, "NP_123456")
	assert.Contains(t, accs, "123456")
}

func TestExtractAccessionsGenericPipeDelimited(t *testing.T) {
	accs := ExtractAccessions(">foo|bar|baz")
	assert.Equal(t, []string{"foo", "bar", "baz"}, accs)
}

func TestExtractAccessionsBareTokenWithVersion(t *testing.T) {
	accs := ExtractAccessions(">ACC123.2 some description")
	assert.Equal(t, []string{"ACC123.2", "ACC123"}, accs)
}

func TestExtractAccessionsBareTokenNoVersion(t *testing.T) {
	accs := ExtractAccessions(">ACC123 some description")
	assert.Equal(t, []string{"ACC123"}, accs)
}

func TestExtractTaxonOX(t *testing.T) {
	taxon, ok := ExtractTaxon("sp|P12345|PROT_HUMAN OS=Homo sapiens OX=9606 GN=FOO PE=1 SV=2")
	assert.True(t, ok)
	assert.Equal(t, "9606", taxon)
}

func TestExtractTaxonFallbackTaxID(t *testing.T) {
	taxon, ok := ExtractTaxon("some header TaxID=10090 trailing")
	assert.True(t, ok)
	assert.Equal(t, "10090", taxon)
}

func TestExtractTaxonAbsent(t *testing.T) {
	_, ok := ExtractTaxon("no taxon info here")
	assert.False(t, ok)
}

func TestExtractMetadata(t *testing.T) {
	md := ExtractMetadata("OS=Homo sapiens GN=FOO PE=1 SV=2")
	assert.Equal(t, "Homo sapiens", md["OS"])
	assert.Equal(t, "FOO", md["GN"])
	assert.Equal(t, "1", md["PE"])
	assert.Equal(t, "2", md["SV"])
}

func TestDetectSequenceType(t *testing.T) {
	assert.Equal(t, DNA, DetectSequenceType([]byte("ACGTACGTACGTACGT")))
	assert.Equal(t, RNA, DetectSequenceType([]byte("ACGUACGUACGUACGU")))
	assert.Equal(t, Protein, DetectSequenceType([]byte("MVALPRWFDK")))
	assert.Equal(t, Unknown, DetectSequenceType(nil))
}
