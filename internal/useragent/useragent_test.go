package useragent

import (
	"strings"
	"testing"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appCorpBrowser appid.ID = 6001

func TestClassify(t *testing.T) {
	c := New([]rules.Pattern{
		{Bytes: []byte("CorpBrowser"), Service: appid.HTTP, Client: appCorpBrowser, AppID: appCorpBrowser},
	})

	cases := []struct {
		name    string
		ua      string
		service appid.ID
		client  appid.ID
		version string
	}{
		{
			name:    "chrome dominates safari",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0 Safari/537.36",
			service: appid.HTTP, client: appid.Chrome, version: "58.0",
		},
		{
			name:    "desktop safari with version token",
			ua:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_12_4) AppleWebKit/603.1.30 (KHTML, like Gecko) Version/10.1 Safari/603.1.30",
			service: appid.HTTP, client: appid.Safari, version: "10.1",
		},
		{
			name:    "mobile safari",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 10_3 like Mac OS X) AppleWebKit/603.1.30 (KHTML, like Gecko) Version/10.0 Mobile/14E277 Safari/602.1",
			service: appid.HTTP, client: appid.SafariMobile, version: "10.0",
		},
		{
			name:    "apple mail",
			ua:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13) AppleWebKit/605.1.15 (KHTML, like Gecko)",
			service: appid.HTTP, client: appid.AppleEmail, version: "",
		},
		{
			name:    "firefox",
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:52.0) Gecko/20100101 Firefox/52.0",
			service: appid.HTTP, client: appid.Firefox, version: "52.0",
		},
		{
			name:    "internet explorer compat",
			ua:      "Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.1; SLCC2; .NET CLR 2.0)",
			service: appid.HTTP, client: appid.InternetExplorer, version: "8.0 (Compat)",
		},
		{
			name:    "wget reads to the end",
			ua:      "Wget/1.19.4 (linux-gnu)",
			service: appid.HTTP, client: appid.Wget, version: "1.19.4 (linux-gnu)",
		},
		{
			name:    "curl short circuits",
			ua:      "curl/7.54.0",
			service: appid.HTTP, client: appid.Curl, version: "7.54.0",
		},
		{
			name:    "blackberry version after first slash",
			ua:      "BlackBerry9700/5.0.0.351 Profile/MIDP-2.1",
			service: appid.HTTP, client: appid.BlackBerryBrowser, version: "5.0.0.351",
		},
		{
			name:    "android without dominant signature",
			ua:      "Mozilla/5.0 (Linux; U; Android 4.0.3; en-us) AppleWebKit/534.30 (KHTML, like Gecko)",
			service: appid.HTTP, client: appid.AndroidBrowser, version: "4.0.3",
		},
		{
			name:    "skype overrides browser",
			ua:      "Mozilla/5.0 Chrome/58.0 Skype/7.40",
			service: appid.SkypeAuth, client: appid.Skype, version: "58.0",
		},
		{
			name:    "longest misc signature dominates",
			ua:      "Mozilla/5.0 CorpBrowser/3.1 Safari/537.36",
			service: appid.HTTP, client: appCorpBrowser, version: "3.1",
		},
		{
			name:    "google desktop closing paren",
			ua:      "Mozilla/4.0 (compatible; Google Desktop)",
			service: appid.HTTP, client: appid.GoogleDesktop, version: "",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := c.Classify([]byte(tt.ua))
			require.True(t, ok)
			assert.Equal(t, tt.service, res.Service)
			assert.Equal(t, tt.client, res.Client)
			assert.Equal(t, tt.version, res.Version)
		})
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := New(nil)
	_, ok := c.Classify([]byte("SomethingElse/1.0"))
	assert.False(t, ok)
}

func TestVersionIsBounded(t *testing.T) {
	c := New(nil)
	res, ok := c.Classify([]byte("curl/" + strings.Repeat("9", 200)))
	require.True(t, ok)
	assert.Len(t, res.Version, rules.MaxVersionLen)
}
