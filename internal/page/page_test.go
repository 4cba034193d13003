package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPage(t *testing.T, status int, body string) *Page {
	t.Helper()
	p, err := New("https://www.funda.nl/zoeken/koop", status, []byte(body))
	require.NoError(t, err)
	return p
}

func TestBlockedDetection(t *testing.T) {
	assert.True(t, mustPage(t, 403, "<html></html>").Blocked())
	assert.True(t, mustPage(t, 302, "<html></html>").Blocked())
	assert.True(t, mustPage(t, 503, "<html></html>").Blocked())
	assert.True(t, mustPage(t, 200, "<html><body>Je bent bijna op de pagina die je zoekt</body></html>").Blocked())
	assert.False(t, mustPage(t, 200, "<html><body>resultaten</body></html>").Blocked())
	assert.False(t, mustPage(t, 404, "<html></html>").Blocked())
}

func TestStructuredBlocksSkipsMalformed(t *testing.T) {
	body := `<html><head>
	<script type="application/ld+json">{"@type":"Product","name":"a"}</script>
	<script type="application/ld+json">{not json at all</script>
	<script type="application/ld+json">[{"@type":"ListItem"},{"@type":"ListItem"}]</script>
	</head><body></body></html>`

	blocks := mustPage(t, 200, body).StructuredBlocks()
	require.Len(t, blocks, 3, "one object plus two flattened array elements")
	assert.Equal(t, "Product", blocks[0]["@type"])
}

func TestTypeMatchesScalarAndList(t *testing.T) {
	assert.True(t, TypeMatches(map[string]interface{}{"@type": "Product"}, "Product", "Place"))
	assert.True(t, TypeMatches(map[string]interface{}{"@type": []interface{}{"Thing", "Place"}}, "Place"))
	assert.False(t, TypeMatches(map[string]interface{}{"@type": "product"}, "Product"), "matching is case sensitive")
	assert.False(t, TypeMatches(map[string]interface{}{}, "Product"))
}

func TestStringAndNumberField(t *testing.T) {
	block := map[string]interface{}{
		"address": map[string]interface{}{"postalCode": "1051 XZ"},
		"offers":  map[string]interface{}{"price": "450000"},
		"floor":   map[string]interface{}{"value": 62.5},
	}

	s, ok := StringField(block, "address", "postalCode")
	require.True(t, ok)
	assert.Equal(t, "1051 XZ", s)

	_, ok = StringField(block, "address", "missing")
	assert.False(t, ok)

	n, ok := NumberField(block, "offers", "price")
	require.True(t, ok)
	assert.Equal(t, 450000.0, n)

	n, ok = NumberField(block, "floor", "value")
	require.True(t, ok)
	assert.Equal(t, 62.5, n)
}

func TestResolveURL(t *testing.T) {
	p := mustPage(t, 200, "<html></html>")
	assert.Equal(t,
		"https://www.funda.nl/detail/koop/amsterdam/appartement-a-1/1/",
		p.ResolveURL("/detail/koop/amsterdam/appartement-a-1/1/"))
	assert.Equal(t,
		"https://other.example/x",
		p.ResolveURL("https://other.example/x"))
}
