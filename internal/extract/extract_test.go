package extract

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseFullDocument(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Fox Den</title>` +
		`<meta name="description" content="All <b>about</b> foxes">` +
		`<meta name="keywords" content="fox,den"></head>` +
		`<body><h1>Foxes</h1><p>The quick <em>brown</em> fox.</p>` +
		`<script>var hidden = 1;</script>` +
		`<a href="/a">A</a><a href="https://other.example/b#c">B</a><a>no</a></body></html>`

	res := Parse([]byte(page), mustURL(t, "https://s.example/den"))

	assert.Equal(t, "Fox Den", res.Title)
	assert.Equal(t, "All about foxes", res.Description)
	assert.Equal(t, []string{"fox", "den"}, res.Keywords)
	assert.Equal(t, []string{"/a", "https://other.example/b#c"}, res.Links)
	assert.Equal(t, "All about foxes\nfox\nden\nFox Den Foxes\nThe quick brown fox.\nA B no", res.Text)
	assert.NotContains(t, res.Text, "hidden")
}

func TestFallbackTitleFromPath(t *testing.T) {
	t.Parallel()

	res := Parse([]byte("<p>body</p>"), mustURL(t, "https://s.example/blog/my_first-post.html"))
	assert.Equal(t, "blog my first post", res.Title)
	assert.Equal(t, "blog my first post\nbody", res.Text)
}

func TestFallbackTitleFromHostname(t *testing.T) {
	t.Parallel()

	res := Parse([]byte("<p>body</p>"), mustURL(t, "https://s.example/"))
	assert.Equal(t, "s.example", res.Title)
}

func TestIgnoredElementsContributeNothing(t *testing.T) {
	t.Parallel()

	page := `<title>t</title><body><style>.x{}</style><pre>code block</pre>` +
		`<noscript>enable js</noscript><template><p>tpl</p></template><p>kept</p></body>`
	res := Parse([]byte(page), mustURL(t, "https://s.example/"))
	assert.Equal(t, "t kept", res.Text)
}

func TestEntitiesAndWhitespace(t *testing.T) {
	t.Parallel()

	page := "<title>t</title><p>Fish &amp; Chips&nbsp;today\n\n  and   tomorrow</p>"
	res := Parse([]byte(page), mustURL(t, "https://s.example/"))
	assert.Equal(t, "t Fish & Chips today and tomorrow", res.Text)
}

func TestBlockElementsBreakLines(t *testing.T) {
	t.Parallel()

	page := "<title>t</title><ul><li>one</li><li>two</li></ul><span>a</span><span>b</span>"
	res := Parse([]byte(page), mustURL(t, "https://s.example/"))
	assert.Equal(t, "t one\ntwo\n\na b", res.Text)
}

func TestMalformedHTMLDegrades(t *testing.T) {
	t.Parallel()

	page := `<div><p>Unclosed <b>bold<div>next</i></table><a href="x"`
	var res Result
	require.NotPanics(t, func() {
		res = Parse([]byte(page), mustURL(t, "https://s.example/broken"))
	})
	assert.Contains(t, res.Text, "Unclosed")
	assert.Contains(t, res.Text, "next")
	assert.Equal(t, "broken", res.Title)
}

func TestEmptyDocument(t *testing.T) {
	t.Parallel()

	res := Parse(nil, mustURL(t, "https://s.example/"))
	assert.Equal(t, "s.example", res.Title)
	assert.Empty(t, res.Links)
}
