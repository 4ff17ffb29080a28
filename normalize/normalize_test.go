package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/parser"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.Local)

func symplaInput() RunInput {
	return RunInput{Source: models.SourceSympla, City: "salvador", UntilDays: 90}
}

func TestExternalIDDeterministic(t *testing.T) {
	a := ExternalID("Festival de Verão", "24 de Abr às 19:00")
	b := ExternalID("Festival de Verão", "24 de Abr às 19:00")
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}
	if len(a) != 20 {
		t.Errorf("id length = %d, want 20", len(a))
	}

	if c := ExternalID("Festival de Verão", "25 de Abr às 19:00"); c == a {
		t.Error("changing the date should change the id")
	}
	if c := ExternalID("Festival de Inverno", "24 de Abr às 19:00"); c == a {
		t.Error("changing the title should change the id")
	}
	// Case- and whitespace -sensitive on purpose.
	if c := ExternalID("festival de verão", "24 de Abr às 19:00"); c == a {
		t.Error("case change should change the id")
	}
}

func TestExternalIDURLSafe(t *testing.T) {
	id := ExternalID("título com acentuação çãõ", "11/12/2025 - 21:00")
	if strings.ContainsAny(id, "+/=") {
		t.Errorf("id %q contains non-URL-safe characters", id)
	}
}

func TestNormalizeSymplaFromSearchPayload(t *testing.T) {
	raw := RawCandidate{
		"id":         float64(123456),
		"name":       "Festival de Verão",
		"start_date": "2026-04-24T19:00:00",
		"venue":      map[string]any{"name": "Arena O Canto da Cidade"},
		"image":      "https://assets.example.com/banner.jpg",
		"is_free":    false,
		"price":      "R$ 120",
		"url":        "https://www.sympla.com.br/evento/festival__123456",
	}

	ev, err := Normalize(raw, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if ev.ExternalID != "123456" {
		t.Errorf("external id = %q, want natural id 123456", ev.ExternalID)
	}
	if ev.Title != "Festival de Verão" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.StartDatetime != "2026-04-24T19:00:00" {
		t.Errorf("start = %q", ev.StartDatetime)
	}
	if ev.VenueName != "Arena O Canto da Cidade" {
		t.Errorf("venue = %q, nested venue.name alias not resolved", ev.VenueName)
	}
	if ev.PriceText != "R$ 120" {
		t.Errorf("price text = %q", ev.PriceText)
	}
	if ev.City != "salvador" {
		t.Errorf("city = %q", ev.City)
	}
	if ev.Category != parser.DefaultCategory {
		t.Errorf("category = %q, want source default", ev.Category)
	}
	if ev.RawPayload == nil {
		t.Error("raw payload not retained")
	}
}

func TestNormalizeSymplaAliases(t *testing.T) {
	// Listing-card shape: title/date_text/camelCase aliases.
	raw := RawCandidate{
		"eventId":   "99",
		"title":     "Noite de Jazz",
		"startDate": "2026-05-02T21:30:00.000Z",
		"venueName": "Teatro Gregório de Matos",
		"imageUrl":  "https://img.example.com/jazz.png",
		"link":      "https://www.sympla.com.br/evento/jazz__99",
	}

	ev, err := Normalize(raw, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.ExternalID != "99" {
		t.Errorf("external id = %q", ev.ExternalID)
	}
	if ev.StartDatetime != "2026-05-02T21:30:00" {
		t.Errorf("start = %q, zone suffix should be dropped", ev.StartDatetime)
	}
	if ev.VenueName != "Teatro Gregório de Matos" {
		t.Errorf("venue = %q", ev.VenueName)
	}
	if ev.URL != "https://www.sympla.com.br/evento/jazz__99" {
		t.Errorf("url = %q, link alias not resolved", ev.URL)
	}
}

func TestNormalizeSymplaDerivedID(t *testing.T) {
	raw := RawCandidate{
		"title":     "Sarau da Sé",
		"date_text": "24 de Abr às 19:00",
	}

	ev, err := Normalize(raw, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.ExternalID == "" {
		t.Fatal("expected a derived id")
	}
	if ev.StartDatetime != "2026-04-24T19:00:00" {
		t.Errorf("start = %q", ev.StartDatetime)
	}
	if ev.URL != symplaEventBase+ev.ExternalID {
		t.Errorf("url = %q, want generic event url fallback", ev.URL)
	}

	again, err := Normalize(RawCandidate{
		"title":     "Sarau da Sé",
		"date_text": "24 de Abr às 19:00",
	}, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize second pass: %v", err)
	}
	if again.ExternalID != ev.ExternalID {
		t.Errorf("re-scrape produced id %q, want %q", again.ExternalID, ev.ExternalID)
	}
}

func TestNormalizeSymplaNamedMonthDefaultsTicketingHour(t *testing.T) {
	raw := RawCandidate{
		"id":        "7",
		"title":     "Feira Literária",
		"date_text": "16 de Janeiro",
	}
	ev, err := Normalize(raw, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.StartDatetime != "2026-01-16T19:00:00" {
		t.Errorf("start = %q, want ticketing default hour 19", ev.StartDatetime)
	}
}

func TestNormalizeSymplaInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  RawCandidate
	}{
		{"missing title", RawCandidate{"id": "1", "date_text": "16 de Janeiro"}},
		{"missing date", RawCandidate{"id": "1", "title": "Sem Data"}},
		{"unparseable date", RawCandidate{"id": "1", "title": "Data Ruim", "date_text": "sábado que vem"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.raw, symplaInput(), testNow); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNormalizeSymplaCategorySlug(t *testing.T) {
	raw := RawCandidate{
		"id":            "42",
		"title":         "Tributo ao Rock Nacional",
		"date_text":     "11 de Dez às 21:00",
		"category_slug": "show-musica-festa",
	}
	ev, err := Normalize(raw, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Category != "Shows e Festas" {
		t.Errorf("category = %q", ev.Category)
	}
}

func TestNormalizeSymplaFreePrice(t *testing.T) {
	raw := RawCandidate{
		"id":        "8",
		"title":     "Roda de Capoeira",
		"date_text": "10 de Mai",
		"price":     "Entrada gratuita",
	}
	ev, err := Normalize(raw, symplaInput(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !ev.IsFree {
		t.Error("gratuito marker should set is_free")
	}
	if ev.PriceText != "" {
		t.Errorf("price text = %q, want dropped", ev.PriceText)
	}
}

func TestNormalizeElCabong(t *testing.T) {
	in := RunInput{Source: models.SourceElCabong, City: "salvador"}
	raw := RawCandidate{
		"title":     "Noite de Rock",
		"date_text": "11/12/2025 - 21:00",
		"location":  "El Cabong",
		"url":       "https://elcabong.com.br/evento/noite-de-rock/",
	}

	ev, err := Normalize(raw, in, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.StartDatetime != "2025-12-11T21:00:00" {
		t.Errorf("start = %q", ev.StartDatetime)
	}
	if !strings.HasPrefix(ev.ExternalID, "elcabong-") {
		t.Errorf("external id = %q, want elcabong- prefix", ev.ExternalID)
	}
	if ev.Category != parser.DefaultCategory {
		t.Errorf("category = %q", ev.Category)
	}
	if ev.VenueName != "El Cabong" {
		t.Errorf("venue = %q", ev.VenueName)
	}

	again, err := Normalize(RawCandidate{
		"title":     "Noite de Rock",
		"date_text": "11/12/2025 - 21:00",
	}, in, testNow)
	if err != nil {
		t.Fatalf("Normalize second pass: %v", err)
	}
	if again.ExternalID != ev.ExternalID {
		t.Errorf("identity depends on title+date only: %q vs %q", again.ExternalID, ev.ExternalID)
	}
	if again.URL != elCabongAgendaURL {
		t.Errorf("url = %q, want agenda fallback", again.URL)
	}
}

func TestNormalizeElCabongDefaultHour(t *testing.T) {
	in := RunInput{Source: models.SourceElCabong, City: "salvador"}
	ev, err := Normalize(RawCandidate{
		"title":     "Domingo no Quintal",
		"date_text": "14/12/2025",
	}, in, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.StartDatetime != "2025-12-14T20:00:00" {
		t.Errorf("start = %q, want listing default hour 20", ev.StartDatetime)
	}
}

func TestNormalizeElCabongUnparseableDate(t *testing.T) {
	in := RunInput{Source: models.SourceElCabong, City: "salvador"}
	if _, err := Normalize(RawCandidate{
		"title":     "Sem Data",
		"date_text": "em breve",
	}, in, testNow); err == nil {
		t.Error("expected an error for unparseable date")
	}
}

func TestNormalizeInstagram(t *testing.T) {
	in := RunInput{Source: models.SourceInstagram, City: "salvador"}
	raw := RawCandidate{
		"projeto":  "Jam no MAM",
		"atracoes": "Coletivo Jazz BA",
		"local":    "Museu de Arte Moderna",
		"quanto":   "R$ 20",
		"horario":  "19h30",
		"date":     "2026-01-16",
		"post_url": "https://www.instagram.com/p/abc123/",
	}

	ev, err := Normalize(raw, in, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Title != "Jam no MAM" {
		t.Errorf("title = %q, projeto should win over atracoes", ev.Title)
	}
	if ev.StartDatetime != "2026-01-16T19:30:00" {
		t.Errorf("start = %q", ev.StartDatetime)
	}
	if !strings.HasPrefix(ev.ExternalID, "instagram-") {
		t.Errorf("external id = %q", ev.ExternalID)
	}
	if ev.Category != parser.DefaultCategory {
		t.Errorf("category = %q, want source default", ev.Category)
	}
	if ev.PriceText != "R$ 20" {
		t.Errorf("price text = %q", ev.PriceText)
	}
	if ev.URL != "https://www.instagram.com/p/abc123/" {
		t.Errorf("url = %q", ev.URL)
	}
}

func TestNormalizeInstagramDefaults(t *testing.T) {
	in := RunInput{Source: models.SourceInstagram, City: "salvador"}
	ev, err := Normalize(RawCandidate{
		"atracoes": "Banda da Casa",
		"date":     "2026-01-16",
	}, in, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Title != "Banda da Casa" {
		t.Errorf("title = %q, atracoes fallback not applied", ev.Title)
	}
	if ev.StartDatetime != "2026-01-16T20:00:00" {
		t.Errorf("start = %q, want feed default 20:00", ev.StartDatetime)
	}
	if ev.IsFree {
		t.Error("is_free should default to false when no price hint exists")
	}
}

func TestNormalizeInstagramIgnoresKeywordsInTitle(t *testing.T) {
	// Feed candidates carry no declared category; the source default
	// applies even when the title text matches another keyword group.
	in := RunInput{Source: models.SourceInstagram, City: "salvador"}
	ev, err := Normalize(RawCandidate{
		"projeto": "Peça de Teatro no Solar",
		"date":    "2026-02-10",
	}, in, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Category != parser.DefaultCategory {
		t.Errorf("category = %q, want source default %q", ev.Category, parser.DefaultCategory)
	}
}

func TestNormalizeInstagramSymplaCheckout(t *testing.T) {
	in := RunInput{Source: models.SourceInstagram, City: "salvador"}
	ev, err := Normalize(RawCandidate{
		"projeto": "Festival da Cidade",
		"quanto":  "ingressos no sympla",
		"date":    "2026-02-10",
	}, in, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.PriceText != parser.ExternalCheckoutText {
		t.Errorf("price text = %q, want %q", ev.PriceText, parser.ExternalCheckoutText)
	}
}

func TestNormalizeInstagramMissingBaseDate(t *testing.T) {
	in := RunInput{Source: models.SourceInstagram, City: "salvador"}
	if _, err := Normalize(RawCandidate{"projeto": "Sem Data"}, in, testNow); err == nil {
		t.Error("expected an error without an anchored base date")
	}
}

func TestNormalizeUnknownSource(t *testing.T) {
	if _, err := Normalize(RawCandidate{}, RunInput{Source: "myspace"}, testNow); err == nil {
		t.Error("expected an error for an unknown source")
	}
}
