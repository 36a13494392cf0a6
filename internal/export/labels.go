package export

import "strings"

// fieldLabels maps answer field names to the printed Finnish labels.
var fieldLabels = map[string]string{
	"vesi_viemari_liitos":      "Vesi- ja viemäriliitoskohtalausunto ja johtokartta",
	"sokkelin_korko":           "Sokkelin korko",
	"talousrakennus_ulkomitat": "Talousrakennus ulkomitat",
	"sahko_liittymiskohta":     "Sähköliittymiskohta",
	"radonin_torjunta":         "Radonin torjunta",
	"sahkoverkkoyhtio":         "Sähköverkkoyhtiö",
	"paasulakekoko":            "Pääsulakekoko",
	"lamponlahde":              "Lämmönlähde",
	"viemarointi":              "Viemäröinti",
	"salaoja_sadevesi":         "Salaoja ja sadevesi",
}

var fileFieldLabels = map[string]string{
	"kaavaote":              "Kaavaote, kaavamääräykset, rakentamistapaohjeet",
	"tonttikartta":          "Virallinen tonttikartta asemapiirroksen laatimista varten myös sähköisenä dwg-muodossa",
	"vesi_viemari_lausunto": "Mikäli vesi- ja viemäriliitoskohtalausunto ja johtokartta tarvitaan, lataa dokumentit tässä.",
	"sijoitusluonnos":       "Sijoitusluonnos",
	"pohjatutkimus":         "Pohjatutkimusaineisto (maaperätutkimus ja perustamistapalausunto)",
	"sahko_sijoitusluonnos": "Sijoitusluonnos sähköasemapiirrosta varten.",
	"general":               "Yleiset tiedostot",
}

// FieldLabel returns the printed label for an answer field, falling
// back to the field name with underscores spaced out.
func FieldLabel(name string) string {
	if label, ok := fieldLabels[name]; ok {
		return label
	}
	return strings.ReplaceAll(name, "_", " ")
}

func FileFieldLabel(name string) string {
	if label, ok := fileFieldLabels[name]; ok {
		return label
	}
	return strings.ReplaceAll(name, "_", " ")
}
