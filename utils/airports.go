// utils/airports.go
package utils

import "strings"

// NormalizeAirportCode converts 4-letter US ICAO codes (e.g., "KJFK") to 3-letter codes ("JFK").
// Other codes are returned as is. Converts to uppercase.
func NormalizeAirportCode(code string) string {
	upperCode := strings.ToUpper(strings.TrimSpace(code))
	if len(upperCode) == 4 && strings.HasPrefix(upperCode, "K") {
		return upperCode[1:]
	}
	return upperCode
}

// GuessICAO derives the ICAO code of a contiguous-US airport from its IATA code
// ("JFK" -> "KJFK"). It returns "" when no guess applies: a non-US country, or a
// code that is not three letters. Alaska and Hawaii (PA.., PH..) are not covered.
func GuessICAO(iata, country string) string {
	code := NormalizeAirportCode(iata)
	if len(code) != 3 {
		return ""
	}
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "US", "USA", "UNITED STATES", "UNITED STATES OF AMERICA":
		return "K" + code
	}
	return ""
}
