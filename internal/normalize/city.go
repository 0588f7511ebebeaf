package normalize

import (
	"regexp"

	"salestrack/internal/domain"
)

// bareDate catches dates that leaked into the city column when a legacy
// sheet had its columns shifted.
var bareDate = regexp.MustCompile(`^\d{1,4}[./\-]\d{1,2}[./\-]\d{1,4}$`)

var numericOnly = regexp.MustCompile(`^[\d\s.,]+$`)

// cityCorrections maps folded spellings seen in legacy exports to the
// canonical city name. Kocaeli province is recorded under its center, İzmit.
var cityCorrections = map[string]string{
	"istanbul":      "İstanbul",
	"istambul":      "İstanbul",
	"instanbul":     "İstanbul",
	"istnbul":       "İstanbul",
	"istanbl":       "İstanbul",
	"ist":           "İstanbul",
	"ankara":        "Ankara",
	"ankra":         "Ankara",
	"anakara":       "Ankara",
	"izmir":         "İzmir",
	"izmr":          "İzmir",
	"izmit":         "İzmit",
	"izmt":          "İzmit",
	"kocaeli":       "İzmit",
	"kocali":        "İzmit",
	"bursa":         "Bursa",
	"brusa":         "Bursa",
	"antalya":       "Antalya",
	"antlya":        "Antalya",
	"eskisehir":     "Eskişehir",
	"eskishehir":    "Eskişehir",
	"gaziantep":     "Gaziantep",
	"antep":         "Gaziantep",
	"mersin":        "Mersin",
	"icel":          "Mersin",
	"sakarya":       "Sakarya",
	"adapazari":     "Sakarya",
	"tekirdag":      "Tekirdağ",
	"diyarbakir":    "Diyarbakır",
	"sanliurfa":     "Şanlıurfa",
	"urfa":          "Şanlıurfa",
	"canakkale":     "Çanakkale",
	"mugla":         "Muğla",
	"balikesir":     "Balıkesir",
	"aydin":         "Aydın",
	"kahramanmaras": "Kahramanmaraş",
	"maras":         "Kahramanmaraş",
	"corum":         "Çorum",
	"elazig":        "Elazığ",
	"usak":          "Uşak",
	"kirsehir":      "Kırşehir",
	"nigde":         "Niğde",
}

// NormalizeCityName returns the canonical spelling of a free-text city cell,
// or domain.UnknownCity when the cell is empty or holds a date or number.
func NormalizeCityName(raw string) string {
	cleaned := CleanText(raw)
	if cleaned == "" || bareDate.MatchString(cleaned) || numericOnly.MatchString(cleaned) {
		return domain.UnknownCity
	}
	if canonical, ok := cityCorrections[FoldKey(cleaned)]; ok {
		return canonical
	}
	if FoldKey(cleaned) == FoldKey(domain.UnknownCity) {
		return domain.UnknownCity
	}
	return TitleCaseLocale(cleaned)
}
