package parser

import "strings"

// DefaultCategory is the first keyword group and the fallback for sources
// that declare no category of their own.
const DefaultCategory = "Shows e Festas"

// Sympla listing-category slugs mapped to the controlled vocabulary.
var categoryBySlug = map[string]string{
	"show-musica-festa":    "Shows e Festas",
	"teatro-espetaculo":    "Teatro",
	"gastronomico":         "Gastronomia",
	"curso-workshop":       "Cursos",
	"congresso-palestra":   "Palestras",
	"experiencias":         "Experiências",
	"infantil":             "Infantil",
	"religioso-espiritual": "Religioso",
	"saude-e-bem-estar":    "Bem-estar",
	"arte-e-cultura":       "Arte e Cultura",
	"games-e-geek":         "Games e Geek",
	"gratis":               "Gratuito",
}

// CategoryForSlug maps a source listing slug to a controlled category.
// Unknown slugs pass through unchanged so new listing sections still land
// with a readable label.
func CategoryForSlug(slug string) string {
	if name, ok := categoryBySlug[slug]; ok {
		return name
	}
	return slug
}

// Keyword groups checked in priority order by CategorizeText.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Shows e Festas", []string{"show", "música", "musica", "festival", "concert", "samba", "pagode", "rock", "jazz", "mpb"}},
	{"Teatro", []string{"teatro", "peça", "peca", "espetáculo", "espetaculo", "drama", "comédia", "comedia"}},
	{"Arte e Cultura", []string{"arte", "exposição", "exposicao", "galeria", "museu", "cultura"}},
	{"Gastronomia", []string{"gastronomia", "culinária", "culinaria", "restaurante", "food", "comida"}},
	{"Cursos", []string{"curso", "workshop", "aula", "treinamento"}},
	{"Palestras", []string{"palestra", "conferência", "conferencia", "seminário", "seminario", "talk"}},
}

// CategorizeText infers a category from free title/description text by
// matching fixed keyword groups in priority order. This is the policy of
// vision-assisted extraction, where no declared category exists; plain
// text sources take DefaultCategory and listing sources map their slugs.
func CategorizeText(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.category
			}
		}
	}
	return DefaultCategory
}
