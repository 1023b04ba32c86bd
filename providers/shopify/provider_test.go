package shopify

import (
	"strings"
	"testing"

	"github.com/goliatone/go-appinstall/core"
)

func TestBuildInstallURL_RendersTemplate(t *testing.T) {
	got := BuildInstallURL(
		"acme",
		"client_1",
		[]string{core.ScopeReadScriptTags, core.ScopeWriteScriptTags},
		"https://app.example.com/auth",
		"1700000000",
	)
	want := "https://acme.myshopify.com/admin/oauth/authorize?" +
		"client_id=client_1" +
		"&scope=read_script_tags,write_script_tags" +
		"&redirect_uri=https://app.example.com/auth" +
		"&state=1700000000"
	if got != want {
		t.Fatalf("unexpected install url\n got: %s\nwant: %s", got, want)
	}
}

func TestProvider_InstallURLUsesInput(t *testing.T) {
	provider, err := New(Config{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider.ID() != ProviderID {
		t.Fatalf("expected provider id %q, got %q", ProviderID, provider.ID())
	}
	got := provider.InstallURL(core.InstallURLInput{
		AccountName: "merchant",
		ClientID:    "cid",
		Scopes:      []string{"read_script_tags"},
		RedirectURI: "https://host/auth",
		State:       "42",
	})
	if !strings.HasPrefix(got, "https://merchant.myshopify.com/admin/oauth/authorize?") {
		t.Fatalf("unexpected host/path in %q", got)
	}
	if !strings.HasSuffix(got, "&state=42") {
		t.Fatalf("expected state suffix in %q", got)
	}
}

func TestTokenURL_NormalizesShopDomain(t *testing.T) {
	cases := map[string]string{
		"acme":                        "https://acme.myshopify.com/admin/oauth/access_token",
		"ACME.myshopify.com":          "https://acme.myshopify.com/admin/oauth/access_token",
		"https://acme.myshopify.com/": "https://acme.myshopify.com/admin/oauth/access_token",
		" shop-2.myshopify.com ":      "https://shop-2.myshopify.com/admin/oauth/access_token",
	}
	for input, want := range cases {
		got, err := TokenURL(input)
		if err != nil {
			t.Fatalf("token url for %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("token url for %q: got %q want %q", input, got, want)
		}
	}
}

func TestTokenURL_RejectsForeignDomains(t *testing.T) {
	for _, input := range []string{"", "evil.example.com", "acme.myshopify.com/extra"} {
		if _, err := TokenURL(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestNew_FixedTokenURL(t *testing.T) {
	provider, err := New(Config{TokenURL: "https://fixed.myshopify.com/admin/oauth/access_token"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	got, err := provider.exchange.config.BuildTokenURL("anything")
	if err != nil {
		t.Fatalf("build token url: %v", err)
	}
	if got != "https://fixed.myshopify.com/admin/oauth/access_token" {
		t.Fatalf("expected fixed token url, got %q", got)
	}
}
