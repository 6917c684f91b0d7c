package extractor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser/browsertest"
)

const (
	productURL  = "https://shop.test/dp/1"
	mediaPrefix = "https://m.media-amazon.com/images/I/"
	thumbSel    = "#altImages .item, .image-block .a-list-item"
)

func media(name string) string {
	return mediaPrefix + name + "._SX679_.jpg"
}

// productPage renders a product page whose main image is main
func productPage(main string) string {
	return fmt.Sprintf(`<html><body>
<div id="imgTagWrapperId" class="imgTagWrapper"><img id="landingImage" src="%s"></div>
<div id="altImages"><ul>
	<li class="item"><span><span><div><img src="%st1._SS40_.jpg"></div></span></span></li>
	<li class="item videoThumbnail"><span><span><div><img src="%sv1._SS40_.jpg"></div></span></span></li>
	<li class="item"><span><span><div><img src="%st2._SS40_.jpg"></div></span></span></li>
</ul></div>
</body></html>`, main, mediaPrefix, mediaPrefix, mediaPrefix)
}

func newExtractor() *Extractor {
	cfg := common.NewDefaultConfig()
	return NewExtractor(cfg.Extractor, cfg.Harvest.MaxDetailFragments, arbor.NewLogger())
}

func loaded(t *testing.T, markup string) *browsertest.Surface {
	t.Helper()
	s := browsertest.New().Script(productURL, markup)
	require.NoError(t, s.Navigate(context.Background(), productURL))
	return s
}

func TestExtractMedia_ThumbnailsRevealImages(t *testing.T) {
	s := loaded(t, productPage(media("main"))).
		OnClick(thumbSel, 0, productPage(media("second"))).
		OnClick(thumbSel, 1, productPage(media("video"))).
		OnClick(thumbSel, 2, productPage(media("third")))

	set := models.NewMediaSet(models.DefaultMaxMedia)
	added, err := newExtractor().ExtractMedia(context.Background(), s, set)
	require.NoError(t, err)

	assert.Equal(t, 3, added)
	assert.Equal(t, []string{media("main"), media("second"), media("third")}, set.URLs())
	assert.Equal(t, 2, s.Clicks(), "video thumbnail must not be clicked")
}

func TestExtractMedia_BackgroundThumbnailsCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&b, `<div class="ivThumbImage" style="background: url(&quot;%s&quot;)"></div>`, media(fmt.Sprintf("bg%d", i)))
	}
	b.WriteString(`<div id="altImages"><ul><li class="item">x</li></ul></div></body></html>`)

	s := loaded(t, b.String())
	set := models.NewMediaSet(models.DefaultMaxMedia)

	added, err := newExtractor().ExtractMedia(context.Background(), s, set)
	require.NoError(t, err)

	assert.Equal(t, models.DefaultMaxMedia, added)
	assert.Equal(t, media("bg1"), set.URLs()[0])
	assert.Equal(t, media("bg5"), set.URLs()[4])
	assert.Equal(t, 0, s.Clicks())
}

func TestExtractMedia_FiltersPrefixAndSuffix(t *testing.T) {
	s := loaded(t, `<html><body>
<img id="landingImage" src="https://elsewhere.test/images/I/x._SX679_.jpg">
<div id="imgTagWrapperId"><img src="`+mediaPrefix+`small._SS40_.jpg"></div>
</body></html>`)

	set := models.NewMediaSet(models.DefaultMaxMedia)
	added, err := newExtractor().ExtractMedia(context.Background(), s, set)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestExtractMedia_FullSetIsNoop(t *testing.T) {
	s := loaded(t, productPage(media("main")))
	set := models.NewMediaSet(1, "existing")

	added, err := newExtractor().ExtractMedia(context.Background(), s, set)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, []string{"existing"}, set.URLs())
}

func TestExtractMedia_NothingFound(t *testing.T) {
	s := loaded(t, `<html><body><p>Please try again later</p></body></html>`)

	set := models.NewMediaSet(models.DefaultMaxMedia)
	added, err := newExtractor().ExtractMedia(context.Background(), s, set)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestExtractMedia_QueryFault(t *testing.T) {
	s := loaded(t, productPage(media("main"))).FailQueries(1)

	set := models.NewMediaSet(models.DefaultMaxMedia)
	_, err := newExtractor().ExtractMedia(context.Background(), s, set)
	assert.ErrorIs(t, err, browsertest.ErrInjected)
}

func TestExtractDetails_PrefixProbe(t *testing.T) {
	s := loaded(t, `<html><body><div id="feature-bullets"><ul>
	<li><span>A &amp; B</span></li>
	<li><span>   spaced
	   text </span></li>
	<li><span>  </span></li>
	<li><span>four</span></li>
	<li>no span here</li>
	<li><span>unreachable</span></li>
</ul></div></body></html>`)

	fragments, err := newExtractor().ExtractDetails(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"A & B", "spaced text", "four"}, fragments)
}

func TestExtractDetails_ProbeDepth(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><div id="feature-bullets"><ul>`)
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, "<li><span>item %d</span></li>", i)
	}
	b.WriteString("</ul></div></body></html>")

	s := loaded(t, b.String())
	fragments, err := newExtractor().ExtractDetails(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, fragments, DefaultMaxDetailFragments)
	assert.Equal(t, "item 19", fragments[18])
}

func TestExtractDetails_Absent(t *testing.T) {
	s := loaded(t, `<html><body></body></html>`)

	fragments, err := newExtractor().ExtractDetails(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestFormatDetails(t *testing.T) {
	assert.Equal(t, "<p>a</p>\n<p>b</p>", FormatDetails([]string{"a", "b"}))
	assert.Equal(t, "", FormatDetails(nil))
}
