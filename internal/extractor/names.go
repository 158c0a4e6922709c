package extractor

import (
	"regexp"
	"strings"
)

// airportNames maps ICAO codes to the usual display name. It takes precedence
// over the name carried by the document, which is often the region or country.
var airportNames = map[string]string{
	"LFPG": "Paris Charles de Gaulle",
	"LFPO": "Paris Orly",
	"LFPB": "Paris Le Bourget",
	"LFPN": "Toussus-le-Noble",
	"LFPT": "Pontoise Cormeilles",
	"LFST": "Strasbourg Entzheim",
	"LFSB": "Bâle-Mulhouse",
	"LFSN": "Nancy Essey",
	"LFJL": "Metz-Nancy-Lorraine",
	"LFGA": "Colmar Houssen",
	"LFMN": "Nice Côte d'Azur",
	"LFML": "Marseille Provence",
	"LFMT": "Montpellier Méditerranée",
	"LFLL": "Lyon Saint-Exupéry",
	"LFLY": "Lyon Bron",
	"LFLS": "Grenoble Isère",
	"LFBO": "Toulouse Blagnac",
	"LFBD": "Bordeaux Mérignac",
	"LFRS": "Nantes Atlantique",
	"LFRN": "Rennes Saint-Jacques",
	"LFRB": "Brest Bretagne",
	"LFQQ": "Lille Lesquin",
	"LFOB": "Beauvais Tillé",
	"LFKJ": "Ajaccio Napoléon Bonaparte",
	"LFKB": "Bastia Poretta",
	"NTAA": "Tahiti Faa'a",
	"NWWW": "Nouméa La Tontouta",
}

// genericNames are document names that describe a territory, not an aerodrome.
var genericNames = map[string]bool{
	"":                    true,
	"FRANCE":              true,
	"POLYNESIE FRANCAISE": true,
	"NOUVELLE CALEDONIE":  true,
}

var countrySuffixRe = regexp.MustCompile(`(?i)\s*(FRANCE|SUISSE|BELGIQUE|ALLEMAGNE|ESPAGNE|ITALIE)$`)

// resolveAirportName picks the display name: the built-in table, then the
// document name when it is specific, then the alternate and city names, then
// the ICAO code itself.
func resolveAirportName(icao, name, alt, city string, table map[string]string) string {
	if n, ok := table[icao]; ok && n != "" {
		return n
	}
	if n, ok := airportNames[icao]; ok {
		return n
	}

	name = strings.TrimSpace(name)
	if genericNames[strings.ToUpper(name)] {
		for _, candidate := range []string{alt, city} {
			if c := strings.TrimSpace(candidate); c != "" {
				return c
			}
		}
		return icao
	}

	return cleanAirportName(icao, name)
}

// cleanAirportName strips a leading duplicate ICAO code and a trailing country.
func cleanAirportName(icao, name string) string {
	name = strings.TrimPrefix(name, icao+" ")
	name = countrySuffixRe.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" {
		return icao
	}
	return name
}
