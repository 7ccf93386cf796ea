package i18n

import (
	"strings"
	"testing"
)

func TestLoad_EnglishCatalog(t *testing.T) {
	tr, err := Load("../../configs/messages", "en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := tr.Translate("radio", "dispatch_arrived", "SMUR", "CHANTIER")
	if !strings.Contains(got, "SMUR") || !strings.Contains(got, "CHANTIER") {
		t.Fatalf("formatted message lost args: %q", got)
	}
	if strings.Contains(got, "%") {
		t.Fatalf("unconsumed format verb in %q", got)
	}
	if got := tr.Translate("radio", "sitrep"); got == "" || strings.Contains(got, "%") {
		t.Fatalf("plain message = %q", got)
	}
}

func TestLoad_FrenchCatalogCoversEnglishKeys(t *testing.T) {
	en, err := Load("../../configs/messages", "en")
	if err != nil {
		t.Fatalf("load en: %v", err)
	}
	fr, err := Load("../../configs/messages", "fr")
	if err != nil {
		t.Fatalf("load fr: %v", err)
	}
	for cat, keys := range en.messages {
		for key := range keys {
			if _, ok := fr.messages[cat][key]; !ok {
				t.Errorf("fr catalog missing %s.%s", cat, key)
			}
		}
	}
}

func TestTranslate_MissingEntryFallsBack(t *testing.T) {
	tr := Empty()
	if got := tr.Translate("engine", "channel_busy"); got != "engine.channel_busy" {
		t.Fatalf("fallback = %q", got)
	}
	got := tr.Translate("radio", "actor_arrived", "PMA")
	if !strings.HasPrefix(got, "radio.actor_arrived") || !strings.Contains(got, "PMA") {
		t.Fatalf("fallback with args = %q", got)
	}
}

func TestLoad_MissingLanguageFails(t *testing.T) {
	if _, err := Load("../../configs/messages", "xx"); err == nil {
		t.Fatalf("unknown language loaded")
	}
}
